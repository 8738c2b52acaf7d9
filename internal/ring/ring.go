// Package ring holds keyspace arithmetic for the 256-slot ring.
package ring

import (
	"errors"

	"github.com/cespare/xxhash/v2"
	"github.com/danmuck/ringdht/internal/pdu"
)

// Slots is the size of the keyspace.
const Slots = 256

var (
	ErrTooSmall    = errors.New("ring: range too small to split")
	ErrNotAdjacent = errors.New("ring: ranges are not adjacent")
)

// Full is the whole keyspace, owned by the first node of a ring.
var Full = pdu.KeyRange{Start: 0, End: Slots - 1}

// Slot hashes an identifier onto the ring.
func Slot(ssn string) uint8 {
	return uint8(xxhash.Sum64String(ssn) % Slots)
}

// Span is the number of slots r covers. A range wraps when End < Start.
func Span(r pdu.KeyRange) int {
	return (int(r.End)-int(r.Start)+Slots)%Slots + 1
}

func Contains(r pdu.KeyRange, slot uint8) bool {
	return (int(slot)-int(r.Start)+Slots)%Slots < Span(r)
}

// Split keeps the lower half and gives away the upper half. An odd span
// keeps the extra slot.
func Split(r pdu.KeyRange) (keep, give pdu.KeyRange, err error) {
	span := Span(r)
	if span < 2 {
		return r, pdu.KeyRange{}, ErrTooSmall
	}
	keepSpan := (span + 1) / 2
	keepEnd := uint8((int(r.Start) + keepSpan - 1) % Slots)
	keep = pdu.KeyRange{Start: r.Start, End: keepEnd}
	give = pdu.KeyRange{Start: keepEnd + 1, End: r.End}
	return keep, give, nil
}

// Adjacent reports whether b starts right after a ends.
func Adjacent(a, b pdu.KeyRange) bool {
	return a.End+1 == b.Start
}

// Merge joins two ranges that touch in either order.
func Merge(a, b pdu.KeyRange) (pdu.KeyRange, error) {
	if Span(a)+Span(b) > Slots {
		return pdu.KeyRange{}, ErrNotAdjacent
	}
	switch {
	case Adjacent(a, b):
		return pdu.KeyRange{Start: a.Start, End: b.End}, nil
	case Adjacent(b, a):
		return pdu.KeyRange{Start: b.Start, End: a.End}, nil
	default:
		return pdu.KeyRange{}, ErrNotAdjacent
	}
}
