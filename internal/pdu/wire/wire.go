// Package wire owns the fixed-width big-endian primitives every PDU is built from.
package wire

import (
	"encoding/binary"
	"fmt"
)

// Kind is one supported unsigned field width.
type Kind uint8

const (
	U8Kind Kind = iota + 1
	U16Kind
	U32Kind
)

// Size reports the encoded width of k in bytes.
func (k Kind) Size() int {
	switch k {
	case U8Kind:
		return 1
	case U16Kind:
		return 2
	case U32Kind:
		return 4
	default:
		return 0
	}
}

func (k Kind) String() string {
	switch k {
	case U8Kind:
		return "u8"
	case U16Kind:
		return "u16"
	case U32Kind:
		return "u32"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func AppendU8(dst []byte, v uint8) []byte {
	return append(dst, v)
}

func AppendU16(dst []byte, v uint16) []byte {
	return binary.BigEndian.AppendUint16(dst, v)
}

func AppendU32(dst []byte, v uint32) []byte {
	return binary.BigEndian.AppendUint32(dst, v)
}

// U8 reads one byte. Callers check len(b) first.
func U8(b []byte) (uint8, int) {
	return b[0], 1
}

// U16 reads a big-endian uint16. Callers check len(b) first.
func U16(b []byte) (uint16, int) {
	return binary.BigEndian.Uint16(b[:2]), 2
}

// U32 reads a big-endian uint32. Callers check len(b) first.
func U32(b []byte) (uint32, int) {
	return binary.BigEndian.Uint32(b[:4]), 4
}
