package pdu

import (
	"fmt"
	"strings"

	"github.com/danmuck/ringdht/internal/pdu/schema"
)

// DecodeFunc parses one PDU from the front of buf. It reports false when buf
// does not yet hold a complete message.
type DecodeFunc func(buf []byte) (PDU, int, bool)

// Entry registers one discriminant with its name and decoder.
type Entry struct {
	Type   Type
	Name   string
	Decode DecodeFunc
}

// Catalog maps every discriminant byte to its entry. It is read-only once built.
type Catalog struct {
	entries [256]*Entry
	types   []Type
}

// Status is the kind of result TryDecode produced.
type Status uint8

const (
	Parsed Status = iota
	NeedMoreData
	UnknownDiscriminant
)

func (s Status) String() string {
	switch s {
	case Parsed:
		return "parsed"
	case NeedMoreData:
		return "need_more_data"
	case UnknownDiscriminant:
		return "unknown_discriminant"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Outcome is the result of TryDecode. PDU and Consumed are set only when
// Status is Parsed; Discriminant is set whenever buf held at least one byte.
type Outcome struct {
	Status       Status
	PDU          PDU
	Consumed     int
	Discriminant Type
}

// NewCatalog registers entries and fails if two share a discriminant.
func NewCatalog(entries ...Entry) (*Catalog, error) {
	c := &Catalog{types: make([]Type, 0, len(entries))}
	for i := range entries {
		e := entries[i]
		if e.Decode == nil {
			return nil, fmt.Errorf("%w: %s (%d)", ErrNilDecoder, e.Name, uint8(e.Type))
		}
		if strings.TrimSpace(e.Name) == "" {
			e.Name = e.Type.String()
		}
		if prev := c.entries[e.Type]; prev != nil {
			return nil, fmt.Errorf("%w: %d used by %s and %s", ErrDuplicateDiscriminant, uint8(e.Type), prev.Name, e.Name)
		}
		c.entries[e.Type] = &e
		c.types = append(c.types, e.Type)
	}
	return c, nil
}

// MustCatalog is NewCatalog for package init; it panics on a registration conflict.
func MustCatalog(entries ...Entry) *Catalog {
	c, err := NewCatalog(entries...)
	if err != nil {
		panic(err)
	}
	return c
}

func fixed[T PDU](l *schema.Layout[T]) DecodeFunc {
	return func(buf []byte) (PDU, int, bool) {
		rec, n, ok := l.Decode(buf)
		if !ok {
			return nil, 0, false
		}
		return rec, n, true
	}
}

// DefaultEntries is the full ring DHT message set.
func DefaultEntries() []Entry {
	return []Entry{
		{Type: TypeAlive, Name: TypeAlive.String(), Decode: fixed(aliveLayout)},
		{Type: TypeGetNode, Name: TypeGetNode.String(), Decode: fixed(getNodeLayout)},
		{Type: TypeGetNodeResponse, Name: TypeGetNodeResponse.String(), Decode: fixed(getNodeResponseLayout)},
		{Type: TypeJoin, Name: TypeJoin.String(), Decode: fixed(joinLayout)},
		{Type: TypeJoinResponse, Name: TypeJoinResponse.String(), Decode: fixed(joinResponseLayout)},
		{Type: TypeCloseConnection, Name: TypeCloseConnection.String(), Decode: fixed(closeConnectionLayout)},
		{Type: TypeNewRange, Name: TypeNewRange.String(), Decode: fixed(newRangeLayout)},
		{Type: TypeLeaving, Name: TypeLeaving.String(), Decode: fixed(leavingLayout)},
		{Type: TypeNewRangeResponse, Name: TypeNewRangeResponse.String(), Decode: fixed(newRangeResponseLayout)},
		{Type: TypeInsert, Name: TypeInsert.String(), Decode: decodeInsert},
		{Type: TypeRemove, Name: TypeRemove.String(), Decode: decodeRemove},
		{Type: TypeLookup, Name: TypeLookup.String(), Decode: decodeLookup},
		{Type: TypeLookupResponse, Name: TypeLookupResponse.String(), Decode: decodeLookupResponse},
		{Type: TypeStunLookup, Name: TypeStunLookup.String(), Decode: fixed(stunLookupLayout)},
		{Type: TypeStunResponse, Name: TypeStunResponse.String(), Decode: fixed(stunResponseLayout)},
	}
}

var defaultCatalog = MustCatalog(DefaultEntries()...)

// Default returns the process-wide catalog built at init.
func Default() *Catalog {
	return defaultCatalog
}

// TryDecode decodes with the default catalog.
func TryDecode(buf []byte) Outcome {
	return defaultCatalog.TryDecode(buf)
}

// TryDecode reads only the first byte to pick a decoder and delegates the rest.
func (c *Catalog) TryDecode(buf []byte) Outcome {
	if len(buf) == 0 {
		return Outcome{Status: NeedMoreData}
	}
	t := Type(buf[0])
	e := c.entries[t]
	if e == nil {
		return Outcome{Status: UnknownDiscriminant, Discriminant: t}
	}
	p, n, ok := e.Decode(buf)
	if !ok {
		return Outcome{Status: NeedMoreData, Discriminant: t}
	}
	return Outcome{Status: Parsed, PDU: p, Consumed: n, Discriminant: t}
}

func (c *Catalog) Lookup(t Type) (Entry, bool) {
	e := c.entries[t]
	if e == nil {
		return Entry{}, false
	}
	return *e, true
}

func (c *Catalog) Name(t Type) string {
	if e := c.entries[t]; e != nil {
		return e.Name
	}
	return t.String()
}

// Types lists registered discriminants in registration order.
func (c *Catalog) Types() []Type {
	return append([]Type(nil), c.types...)
}
