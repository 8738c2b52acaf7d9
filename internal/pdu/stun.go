package pdu

import "github.com/danmuck/ringdht/internal/pdu/schema"

// StunLookup asks the receiver for the sender's externally visible address.
type StunLookup struct {
	Type Type
}

// StunResponse carries the observed address only; the port is not reported.
type StunResponse struct {
	Type Type
	Addr uint32
}

var (
	stunLookupLayout = schema.New("StunLookup",
		tagField(func(p *StunLookup) *Type { return &p.Type }),
	)
	stunResponseLayout = schema.New("StunResponse",
		tagField(func(p *StunResponse) *Type { return &p.Type }),
		schema.U32("addr", func(p *StunResponse) *uint32 { return &p.Addr }),
	)
)

func NewStunLookup() StunLookup { return StunLookup{Type: TypeStunLookup} }

func NewStunResponse(addr uint32) StunResponse {
	return StunResponse{Type: TypeStunResponse, Addr: addr}
}

func (p StunLookup) PDUType() Type              { return p.Type }
func (p StunLookup) Size() int                  { return stunLookupLayout.Size() }
func (p StunLookup) AppendTo(dst []byte) []byte { return stunLookupLayout.Append(dst, &p) }
func (StunLookup) isPDU()                       {}

func (p StunResponse) PDUType() Type              { return p.Type }
func (p StunResponse) Size() int                  { return stunResponseLayout.Size() }
func (p StunResponse) AppendTo(dst []byte) []byte { return stunResponseLayout.Append(dst, &p) }
func (StunResponse) isPDU()                       {}
