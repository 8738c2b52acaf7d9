package pdu

import "fmt"

// Type is the leading discriminant byte of every PDU.
type Type uint8

// Ring topology family.
const (
	TypeAlive            Type = 0
	TypeGetNode          Type = 1
	TypeGetNodeResponse  Type = 2
	TypeJoin             Type = 3
	TypeJoinResponse     Type = 4
	TypeCloseConnection  Type = 5
	TypeNewRange         Type = 6
	TypeLeaving          Type = 7
	TypeNewRangeResponse Type = 8
)

// Value store family.
const (
	TypeInsert         Type = 100
	TypeRemove         Type = 101
	TypeLookup         Type = 102
	TypeLookupResponse Type = 103
)

// Address discovery family.
const (
	TypeStunLookup   Type = 200
	TypeStunResponse Type = 201
)

var typeNames = map[Type]string{
	TypeAlive:            "Alive",
	TypeGetNode:          "GetNode",
	TypeGetNodeResponse:  "GetNodeResponse",
	TypeJoin:             "Join",
	TypeJoinResponse:     "JoinResponse",
	TypeCloseConnection:  "CloseConnection",
	TypeNewRange:         "NewRange",
	TypeLeaving:          "Leaving",
	TypeNewRangeResponse: "NewRangeResponse",
	TypeInsert:           "Insert",
	TypeRemove:           "Remove",
	TypeLookup:           "Lookup",
	TypeLookupResponse:   "LookupResponse",
	TypeStunLookup:       "StunLookup",
	TypeStunResponse:     "StunResponse",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// Family groups discriminants by numbering range.
type Family uint8

const (
	FamilyNet Family = iota + 1
	FamilyVal
	FamilyStun
)

const (
	valFamilyStart  Type = 100
	stunFamilyStart Type = 200
)

func (t Type) Family() Family {
	switch {
	case t < valFamilyStart:
		return FamilyNet
	case t < stunFamilyStart:
		return FamilyVal
	default:
		return FamilyStun
	}
}

func (f Family) String() string {
	switch f {
	case FamilyNet:
		return "net"
	case FamilyVal:
		return "val"
	case FamilyStun:
		return "stun"
	default:
		return "unknown"
	}
}

// PDU is implemented only by the variants in this package.
type PDU interface {
	PDUType() Type
	// Size is the exact encoded length, including the discriminant.
	Size() int
	// AppendTo appends the encoding to dst.
	AppendTo(dst []byte) []byte

	isPDU()
}

// Encode returns the wire bytes of p. The result always begins with
// p.PDUType() and has length p.Size().
func Encode(p PDU) []byte {
	return p.AppendTo(make([]byte, 0, p.Size()))
}
