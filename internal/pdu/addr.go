package pdu

import (
	"fmt"
	"net/netip"
)

// NodeAddress is an IPv4 host and port as carried on the wire. Addr holds the
// address in network byte order interpreted as a big-endian integer, so
// 1.2.3.4 is 0x01020304. No validation is performed on either value.
type NodeAddress struct {
	Addr uint32
	Port uint16
}

func NodeAddressFrom(ap netip.AddrPort) (NodeAddress, error) {
	ip := ap.Addr().Unmap()
	if !ip.Is4() {
		return NodeAddress{}, fmt.Errorf("%w: %s", ErrNotIPv4, ap)
	}
	b := ip.As4()
	return NodeAddress{
		Addr: uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]),
		Port: ap.Port(),
	}, nil
}

// ParseNodeAddress parses "a.b.c.d:port".
func ParseNodeAddress(s string) (NodeAddress, error) {
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		return NodeAddress{}, err
	}
	return NodeAddressFrom(ap)
}

// IPv4 converts a wire address to netip form.
func IPv4(addr uint32) netip.Addr {
	return netip.AddrFrom4([4]byte{byte(addr >> 24), byte(addr >> 16), byte(addr >> 8), byte(addr)})
}

func (a NodeAddress) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(IPv4(a.Addr), a.Port)
}

func (a NodeAddress) String() string {
	return a.AddrPort().String()
}

// KeyRange is an inclusive [Start, End] interval of the 256-slot keyspace.
type KeyRange struct {
	Start uint8
	End   uint8
}

func (r KeyRange) String() string {
	return fmt.Sprintf("[%d,%d]", r.Start, r.End)
}
