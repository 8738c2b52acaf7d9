// Package client talks to ring members over the PDU protocol.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/danmuck/ringdht/internal/pdu"
	"github.com/danmuck/ringdht/internal/pdu/stream"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnexpectedReply = errors.New("client: unexpected reply")
	ErrEmptyRecord     = errors.New("client: record needs a name or email")
)

const defaultTimeout = 5 * time.Second

// Client issues requests to one ring member. Every request uses its own
// connection.
type Client struct {
	Addr    string
	Timeout time.Duration
	// ReplyHost is the IPv4 address a Lookup reply listener binds and
	// advertises.
	ReplyHost string
	Limits    stream.Limits
}

func New(addr string) *Client {
	return &Client{
		Addr:      strings.TrimSpace(addr),
		Timeout:   defaultTimeout,
		ReplyHost: "127.0.0.1",
		Limits:    stream.DefaultLimits(),
	}
}

// Dial opens a TCP connection bounded by ctx and timeout.
func Dial(ctx context.Context, addr string, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn, nil
}

// Send dials addr, writes ps in order and closes the connection.
func Send(ctx context.Context, addr string, timeout time.Duration, ps ...pdu.PDU) error {
	conn, err := Dial(ctx, addr, timeout)
	if err != nil {
		return err
	}
	defer conn.Close()
	_ = conn.SetWriteDeadline(deadline(ctx, timeout))
	if err := stream.WriteAll(conn, ps...); err != nil {
		return fmt.Errorf("send to %s: %w", addr, err)
	}
	return nil
}

func (c *Client) Insert(ctx context.Context, ssn, name, email string) error {
	p, err := pdu.NewInsert(ssn, name, email)
	if err != nil {
		return err
	}
	if name == "" && email == "" {
		return ErrEmptyRecord
	}
	return Send(ctx, c.Addr, c.timeout(), p)
}

func (c *Client) Remove(ctx context.Context, ssn string) error {
	p, err := pdu.NewRemove(ssn)
	if err != nil {
		return err
	}
	return Send(ctx, c.Addr, c.timeout(), p)
}

// Lookup asks the ring for ssn and waits for the owner to dial back. A reply
// with both fields empty reports found=false.
func (c *Client) Lookup(ctx context.Context, ssn string) (pdu.Record, bool, error) {
	if len(ssn) != pdu.SSNLength {
		return pdu.Record{}, false, fmt.Errorf("%w: %d bytes", pdu.ErrInvalidSSN, len(ssn))
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(c.ReplyHost, "0"))
	if err != nil {
		return pdu.Record{}, false, fmt.Errorf("reply listener: %w", err)
	}
	defer ln.Close()

	sender, err := listenerAddress(ln)
	if err != nil {
		return pdu.Record{}, false, err
	}
	req, err := pdu.NewLookup(ssn, sender.Addr, sender.Port)
	if err != nil {
		return pdu.Record{}, false, err
	}
	if err := Send(ctx, c.Addr, c.timeout(), req); err != nil {
		return pdu.Record{}, false, err
	}
	log.Debug().Str("ssn", ssn).Str("reply_to", sender.String()).Msg("client.lookup sent")

	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return pdu.Record{}, false, fmt.Errorf("lookup %s: %w", ssn, ctx.Err())
			}
			return pdu.Record{}, false, err
		}
		rec, ok, err := c.readLookupReply(conn, ssn)
		if err != nil {
			log.Warn().Err(err).Msg("client.lookup discard reply")
			continue
		}
		return rec, ok, nil
	}
}

func (c *Client) readLookupReply(conn net.Conn, ssn string) (pdu.Record, bool, error) {
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(c.timeout()))
	r := stream.NewReader(conn, c.Limits)
	for {
		p, err := r.ReadPDU()
		if err != nil {
			return pdu.Record{}, false, err
		}
		resp, ok := p.(pdu.LookupResponse)
		if !ok {
			continue
		}
		if resp.SSN != ssn {
			return pdu.Record{}, false, fmt.Errorf("%w: ssn %q", ErrUnexpectedReply, resp.SSN)
		}
		// Stores refuse records with neither field, so an empty reply is a miss.
		return resp.Record, resp.Name != "" || resp.Email != "", nil
	}
}

// Stun returns this client's IPv4 address as seen by the node.
func (c *Client) Stun(ctx context.Context) (netip.Addr, error) {
	p, err := c.roundTrip(ctx, pdu.NewStunLookup())
	if err != nil {
		return netip.Addr{}, err
	}
	resp, ok := p.(pdu.StunResponse)
	if !ok {
		return netip.Addr{}, fmt.Errorf("%w: %s", ErrUnexpectedReply, p.PDUType())
	}
	return pdu.IPv4(resp.Addr), nil
}

// GetNode returns the address the node advertises for itself.
func (c *Client) GetNode(ctx context.Context) (pdu.NodeAddress, error) {
	p, err := c.roundTrip(ctx, pdu.NewGetNode())
	if err != nil {
		return pdu.NodeAddress{}, err
	}
	resp, ok := p.(pdu.GetNodeResponse)
	if !ok {
		return pdu.NodeAddress{}, fmt.Errorf("%w: %s", ErrUnexpectedReply, p.PDUType())
	}
	return resp.Node(), nil
}

func (c *Client) roundTrip(ctx context.Context, req pdu.PDU) (pdu.PDU, error) {
	conn, err := Dial(ctx, c.Addr, c.timeout())
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	_ = conn.SetDeadline(deadline(ctx, c.timeout()))
	if err := stream.WritePDU(conn, req); err != nil {
		return nil, err
	}
	resp, err := stream.NewReader(conn, c.Limits).ReadPDU()
	if err != nil {
		return nil, fmt.Errorf("%s reply: %w", req.PDUType(), err)
	}
	_ = stream.WritePDU(conn, pdu.NewCloseConnection())
	return resp, nil
}

func (c *Client) timeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultTimeout
	}
	return c.Timeout
}

func deadline(ctx context.Context, timeout time.Duration) time.Time {
	d := time.Now().Add(timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(d) {
		return dl
	}
	return d
}

func listenerAddress(ln net.Listener) (pdu.NodeAddress, error) {
	tcp, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		return pdu.NodeAddress{}, fmt.Errorf("reply listener: unexpected addr %s", ln.Addr())
	}
	return pdu.NodeAddressFrom(tcp.AddrPort())
}
