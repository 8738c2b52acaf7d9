// Package pdu owns the ring DHT wire contract.
//
// Ownership boundary:
// - the closed set of PDU variants and their one-byte discriminants
// - fixed-width layouts (derived through package schema)
// - length-prefixed value-store codecs
// - the catalog that dispatches a raw buffer to the right decoder
//
// Every encoded PDU starts with its discriminant and is self-framing: decoding
// reports the exact number of bytes consumed, or asks for more.
package pdu
