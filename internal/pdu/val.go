package pdu

import (
	"fmt"

	"github.com/danmuck/ringdht/internal/pdu/wire"
)

const (
	// SSNLength is the fixed identifier width of every value-store PDU.
	SSNLength = 12
	// MaxFieldLength is the largest length a one-byte prefix can carry.
	MaxFieldLength = 255
	// MaxSize is the longest encoding any PDU can have (Insert with both
	// fields at MaxFieldLength).
	MaxSize = 1 + SSNLength + 2*(1+MaxFieldLength)

	removeSize    = 1 + SSNLength
	lookupSize    = 1 + SSNLength + 4 + 2
	recordMinSize = 1 + SSNLength + 1 + 1
)

// Record is the value-store entity keyed by its identifier.
type Record struct {
	SSN   string
	Name  string
	Email string
}

// Validate checks the identifier width and both field lengths.
func (r Record) Validate() error {
	if err := validateSSN(r.SSN); err != nil {
		return err
	}
	if err := validateField("name", r.Name); err != nil {
		return err
	}
	return validateField("email", r.Email)
}

// Insert stores Record under its identifier.
type Insert struct {
	Type Type
	Record
}

// Remove deletes the record stored under SSN.
type Remove struct {
	Type Type
	SSN  string
}

// Lookup requests the record for SSN. The reply goes to SenderAddr/SenderPort
// on a new connection.
type Lookup struct {
	Type       Type
	SSN        string
	SenderAddr uint32
	SenderPort uint16
}

// LookupResponse carries a found record. Its layout is identical to Insert.
type LookupResponse struct {
	Type Type
	Record
}

func NewInsert(ssn, name, email string) (Insert, error) {
	rec := Record{SSN: ssn, Name: name, Email: email}
	if err := rec.Validate(); err != nil {
		return Insert{}, err
	}
	return Insert{Type: TypeInsert, Record: rec}, nil
}

func NewRemove(ssn string) (Remove, error) {
	if err := validateSSN(ssn); err != nil {
		return Remove{}, err
	}
	return Remove{Type: TypeRemove, SSN: ssn}, nil
}

func NewLookup(ssn string, senderAddr uint32, senderPort uint16) (Lookup, error) {
	if err := validateSSN(ssn); err != nil {
		return Lookup{}, err
	}
	return Lookup{Type: TypeLookup, SSN: ssn, SenderAddr: senderAddr, SenderPort: senderPort}, nil
}

func NewLookupResponse(ssn, name, email string) (LookupResponse, error) {
	rec := Record{SSN: ssn, Name: name, Email: email}
	if err := rec.Validate(); err != nil {
		return LookupResponse{}, err
	}
	return LookupResponse{Type: TypeLookupResponse, Record: rec}, nil
}

func (p Lookup) Sender() NodeAddress {
	return NodeAddress{Addr: p.SenderAddr, Port: p.SenderPort}
}

func validateSSN(ssn string) error {
	if len(ssn) != SSNLength {
		return fmt.Errorf("%w: got %d", ErrInvalidSSN, len(ssn))
	}
	return nil
}

func validateField(name, v string) error {
	if len(v) > MaxFieldLength {
		return fmt.Errorf("%w: %s has %d bytes", ErrFieldTooLong, name, len(v))
	}
	return nil
}

// ssnBytes takes at most SSNLength bytes. A shorter identifier is written as
// is and breaks framing for the receiver; constructors reject it.
func ssnBytes(ssn string) string {
	if len(ssn) > SSNLength {
		return ssn[:SSNLength]
	}
	return ssn
}

func fieldBytes(v string) string {
	if len(v) > MaxFieldLength {
		return v[:MaxFieldLength]
	}
	return v
}

func appendLengthPrefixed(dst []byte, v string) []byte {
	v = fieldBytes(v)
	dst = wire.AppendU8(dst, uint8(len(v)))
	return append(dst, v...)
}

func recordSize(r Record) int {
	return 1 + len(ssnBytes(r.SSN)) + 1 + len(fieldBytes(r.Name)) + 1 + len(fieldBytes(r.Email))
}

func appendRecord(dst []byte, t Type, r Record) []byte {
	dst = wire.AppendU8(dst, uint8(t))
	dst = append(dst, ssnBytes(r.SSN)...)
	dst = appendLengthPrefixed(dst, r.Name)
	return appendLengthPrefixed(dst, r.Email)
}

// decodeRecord parses the shared Insert/LookupResponse layout. The consumed
// size depends on both declared lengths.
func decodeRecord(buf []byte) (Type, Record, int, bool) {
	r := wire.NewReader(buf)
	if !r.Has(recordMinSize) {
		return 0, Record{}, 0, false
	}
	t := Type(r.U8())
	ssn, _ := r.Bytes(SSNLength)
	name, ok := r.LengthPrefixed()
	if !ok {
		return 0, Record{}, 0, false
	}
	email, ok := r.LengthPrefixed()
	if !ok {
		return 0, Record{}, 0, false
	}
	return t, Record{SSN: string(ssn), Name: string(name), Email: string(email)}, r.Offset(), true
}

func decodeInsert(buf []byte) (PDU, int, bool) {
	t, rec, n, ok := decodeRecord(buf)
	if !ok {
		return nil, 0, false
	}
	return Insert{Type: t, Record: rec}, n, true
}

func decodeLookupResponse(buf []byte) (PDU, int, bool) {
	t, rec, n, ok := decodeRecord(buf)
	if !ok {
		return nil, 0, false
	}
	return LookupResponse{Type: t, Record: rec}, n, true
}

func decodeRemove(buf []byte) (PDU, int, bool) {
	r := wire.NewReader(buf)
	if !r.Has(removeSize) {
		return nil, 0, false
	}
	t := Type(r.U8())
	ssn, _ := r.Bytes(SSNLength)
	return Remove{Type: t, SSN: string(ssn)}, r.Offset(), true
}

func decodeLookup(buf []byte) (PDU, int, bool) {
	r := wire.NewReader(buf)
	if !r.Has(lookupSize) {
		return nil, 0, false
	}
	p := Lookup{Type: Type(r.U8())}
	ssn, _ := r.Bytes(SSNLength)
	p.SSN = string(ssn)
	p.SenderAddr = r.U32()
	p.SenderPort = r.U16()
	return p, r.Offset(), true
}

func (p Insert) PDUType() Type              { return p.Type }
func (p Insert) Size() int                  { return recordSize(p.Record) }
func (p Insert) AppendTo(dst []byte) []byte { return appendRecord(dst, p.Type, p.Record) }
func (Insert) isPDU()                       {}

func (p LookupResponse) PDUType() Type              { return p.Type }
func (p LookupResponse) Size() int                  { return recordSize(p.Record) }
func (p LookupResponse) AppendTo(dst []byte) []byte { return appendRecord(dst, p.Type, p.Record) }
func (LookupResponse) isPDU()                       {}

func (p Remove) PDUType() Type { return p.Type }
func (p Remove) Size() int     { return 1 + len(ssnBytes(p.SSN)) }
func (p Remove) AppendTo(dst []byte) []byte {
	dst = wire.AppendU8(dst, uint8(p.Type))
	return append(dst, ssnBytes(p.SSN)...)
}
func (Remove) isPDU() {}

func (p Lookup) PDUType() Type { return p.Type }
func (p Lookup) Size() int     { return 1 + len(ssnBytes(p.SSN)) + 4 + 2 }
func (p Lookup) AppendTo(dst []byte) []byte {
	dst = wire.AppendU8(dst, uint8(p.Type))
	dst = append(dst, ssnBytes(p.SSN)...)
	dst = wire.AppendU32(dst, p.SenderAddr)
	return wire.AppendU16(dst, p.SenderPort)
}
func (Lookup) isPDU() {}
