package pdu

import "github.com/danmuck/ringdht/internal/pdu/schema"

// Alive is a keepalive with no payload.
type Alive struct {
	Type Type
}

// GetNode asks a bootstrap peer for any current ring member.
type GetNode struct {
	Type Type
}

// GetNodeResponse names one ring member.
type GetNodeResponse struct {
	Type Type
	Addr uint32
	Port uint16
}

// Join is sent by a joining node. MaxSpan is the largest assignable span the
// sender knows of and MaxAddr/MaxPort the node believed to hold it, so a
// contacted node can forward the join toward the donor.
type Join struct {
	Type    Type
	SrcAddr uint32
	SrcPort uint16
	MaxSpan uint8
	MaxAddr uint32
	MaxPort uint16
}

// JoinResponse names the joiner's next node in ring order and the range it now owns.
type JoinResponse struct {
	Type       Type
	NextAddr   uint32
	NextPort   uint16
	RangeStart uint8
	RangeEnd   uint8
}

// CloseConnection tears down a link.
type CloseConnection struct {
	Type Type
}

// NewRange reassigns a range between two joined nodes.
type NewRange struct {
	Type       Type
	RangeStart uint8
	RangeEnd   uint8
}

// Leaving announces departure and names the node absorbing the range.
type Leaving struct {
	Type    Type
	NewAddr uint32
	NewPort uint16
}

// NewRangeResponse acknowledges a NewRange.
type NewRangeResponse struct {
	Type Type
}

func tagField[T any](at func(*T) *Type) schema.Field[T] {
	return schema.U8("type", func(p *T) *uint8 { return (*uint8)(at(p)) })
}

var (
	aliveLayout = schema.New("Alive",
		tagField(func(p *Alive) *Type { return &p.Type }),
	)
	getNodeLayout = schema.New("GetNode",
		tagField(func(p *GetNode) *Type { return &p.Type }),
	)
	getNodeResponseLayout = schema.New("GetNodeResponse",
		tagField(func(p *GetNodeResponse) *Type { return &p.Type }),
		schema.U32("addr", func(p *GetNodeResponse) *uint32 { return &p.Addr }),
		schema.U16("port", func(p *GetNodeResponse) *uint16 { return &p.Port }),
	)
	joinLayout = schema.New("Join",
		tagField(func(p *Join) *Type { return &p.Type }),
		schema.U32("src_addr", func(p *Join) *uint32 { return &p.SrcAddr }),
		schema.U16("src_port", func(p *Join) *uint16 { return &p.SrcPort }),
		schema.U8("max_span", func(p *Join) *uint8 { return &p.MaxSpan }),
		schema.U32("max_addr", func(p *Join) *uint32 { return &p.MaxAddr }),
		schema.U16("max_port", func(p *Join) *uint16 { return &p.MaxPort }),
	)
	joinResponseLayout = schema.New("JoinResponse",
		tagField(func(p *JoinResponse) *Type { return &p.Type }),
		schema.U32("next_addr", func(p *JoinResponse) *uint32 { return &p.NextAddr }),
		schema.U16("next_port", func(p *JoinResponse) *uint16 { return &p.NextPort }),
		schema.U8("range_start", func(p *JoinResponse) *uint8 { return &p.RangeStart }),
		schema.U8("range_end", func(p *JoinResponse) *uint8 { return &p.RangeEnd }),
	)
	closeConnectionLayout = schema.New("CloseConnection",
		tagField(func(p *CloseConnection) *Type { return &p.Type }),
	)
	newRangeLayout = schema.New("NewRange",
		tagField(func(p *NewRange) *Type { return &p.Type }),
		schema.U8("range_start", func(p *NewRange) *uint8 { return &p.RangeStart }),
		schema.U8("range_end", func(p *NewRange) *uint8 { return &p.RangeEnd }),
	)
	leavingLayout = schema.New("Leaving",
		tagField(func(p *Leaving) *Type { return &p.Type }),
		schema.U32("new_addr", func(p *Leaving) *uint32 { return &p.NewAddr }),
		schema.U16("new_port", func(p *Leaving) *uint16 { return &p.NewPort }),
	)
	newRangeResponseLayout = schema.New("NewRangeResponse",
		tagField(func(p *NewRangeResponse) *Type { return &p.Type }),
	)
)

func NewAlive() Alive { return Alive{Type: TypeAlive} }

func NewGetNode() GetNode { return GetNode{Type: TypeGetNode} }

func NewGetNodeResponse(addr uint32, port uint16) GetNodeResponse {
	return GetNodeResponse{Type: TypeGetNodeResponse, Addr: addr, Port: port}
}

func NewJoin(srcAddr uint32, srcPort uint16, maxSpan uint8, maxAddr uint32, maxPort uint16) Join {
	return Join{
		Type:    TypeJoin,
		SrcAddr: srcAddr,
		SrcPort: srcPort,
		MaxSpan: maxSpan,
		MaxAddr: maxAddr,
		MaxPort: maxPort,
	}
}

func NewJoinResponse(nextAddr uint32, nextPort uint16, rangeStart, rangeEnd uint8) JoinResponse {
	return JoinResponse{
		Type:       TypeJoinResponse,
		NextAddr:   nextAddr,
		NextPort:   nextPort,
		RangeStart: rangeStart,
		RangeEnd:   rangeEnd,
	}
}

func NewCloseConnection() CloseConnection { return CloseConnection{Type: TypeCloseConnection} }

func NewNewRange(rangeStart, rangeEnd uint8) NewRange {
	return NewRange{Type: TypeNewRange, RangeStart: rangeStart, RangeEnd: rangeEnd}
}

func NewLeaving(newAddr uint32, newPort uint16) Leaving {
	return Leaving{Type: TypeLeaving, NewAddr: newAddr, NewPort: newPort}
}

func NewNewRangeResponse() NewRangeResponse { return NewRangeResponse{Type: TypeNewRangeResponse} }

func (p GetNodeResponse) Node() NodeAddress { return NodeAddress{Addr: p.Addr, Port: p.Port} }

func (p Join) Src() NodeAddress { return NodeAddress{Addr: p.SrcAddr, Port: p.SrcPort} }

func (p Join) Max() NodeAddress { return NodeAddress{Addr: p.MaxAddr, Port: p.MaxPort} }

func (p JoinResponse) Next() NodeAddress { return NodeAddress{Addr: p.NextAddr, Port: p.NextPort} }

func (p JoinResponse) Range() KeyRange { return KeyRange{Start: p.RangeStart, End: p.RangeEnd} }

func (p NewRange) Range() KeyRange { return KeyRange{Start: p.RangeStart, End: p.RangeEnd} }

func (p Leaving) Successor() NodeAddress { return NodeAddress{Addr: p.NewAddr, Port: p.NewPort} }

func (p Alive) PDUType() Type              { return p.Type }
func (p Alive) Size() int                  { return aliveLayout.Size() }
func (p Alive) AppendTo(dst []byte) []byte { return aliveLayout.Append(dst, &p) }
func (Alive) isPDU()                       {}

func (p GetNode) PDUType() Type              { return p.Type }
func (p GetNode) Size() int                  { return getNodeLayout.Size() }
func (p GetNode) AppendTo(dst []byte) []byte { return getNodeLayout.Append(dst, &p) }
func (GetNode) isPDU()                       {}

func (p GetNodeResponse) PDUType() Type { return p.Type }
func (p GetNodeResponse) Size() int     { return getNodeResponseLayout.Size() }
func (p GetNodeResponse) AppendTo(dst []byte) []byte {
	return getNodeResponseLayout.Append(dst, &p)
}
func (GetNodeResponse) isPDU() {}

func (p Join) PDUType() Type              { return p.Type }
func (p Join) Size() int                  { return joinLayout.Size() }
func (p Join) AppendTo(dst []byte) []byte { return joinLayout.Append(dst, &p) }
func (Join) isPDU()                       {}

func (p JoinResponse) PDUType() Type              { return p.Type }
func (p JoinResponse) Size() int                  { return joinResponseLayout.Size() }
func (p JoinResponse) AppendTo(dst []byte) []byte { return joinResponseLayout.Append(dst, &p) }
func (JoinResponse) isPDU()                       {}

func (p CloseConnection) PDUType() Type { return p.Type }
func (p CloseConnection) Size() int     { return closeConnectionLayout.Size() }
func (p CloseConnection) AppendTo(dst []byte) []byte {
	return closeConnectionLayout.Append(dst, &p)
}
func (CloseConnection) isPDU() {}

func (p NewRange) PDUType() Type              { return p.Type }
func (p NewRange) Size() int                  { return newRangeLayout.Size() }
func (p NewRange) AppendTo(dst []byte) []byte { return newRangeLayout.Append(dst, &p) }
func (NewRange) isPDU()                       {}

func (p Leaving) PDUType() Type              { return p.Type }
func (p Leaving) Size() int                  { return leavingLayout.Size() }
func (p Leaving) AppendTo(dst []byte) []byte { return leavingLayout.Append(dst, &p) }
func (Leaving) isPDU()                       {}

func (p NewRangeResponse) PDUType() Type { return p.Type }
func (p NewRangeResponse) Size() int     { return newRangeResponseLayout.Size() }
func (p NewRangeResponse) AppendTo(dst []byte) []byte {
	return newRangeResponseLayout.Append(dst, &p)
}
func (NewRangeResponse) isPDU() {}
