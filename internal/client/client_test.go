package client

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/danmuck/ringdht/internal/pdu"
	"github.com/danmuck/ringdht/internal/pdu/stream"
	"github.com/danmuck/ringdht/internal/testutil/testlog"
)

// fakeNode answers each connection with respond and records what it read.
func fakeNode(t *testing.T, respond func(net.Conn, pdu.PDU)) (string, <-chan pdu.PDU) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	seen := make(chan pdu.PDU, 16)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
				r := stream.NewReader(conn, stream.DefaultLimits())
				for {
					p, err := r.ReadPDU()
					if err != nil {
						return
					}
					seen <- p
					if respond != nil {
						respond(conn, p)
					}
				}
			}(conn)
		}
	}()
	return ln.Addr().String(), seen
}

func testClient(addr string) *Client {
	c := New(addr)
	c.Timeout = time.Second
	return c
}

func next(t *testing.T, seen <-chan pdu.PDU) pdu.PDU {
	t.Helper()
	select {
	case p := <-seen:
		return p
	case <-time.After(2 * time.Second):
		t.Fatalf("no pdu received")
		return nil
	}
}

func TestInsertAndRemoveSendOnePDU(t *testing.T) {
	testlog.Start(t)
	addr, seen := fakeNode(t, nil)
	c := testClient(addr)
	ctx := context.Background()

	if err := c.Insert(ctx, "111111111111", "Test", "Emai"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	want, _ := pdu.NewInsert("111111111111", "Test", "Emai")
	if got := next(t, seen); got != want {
		t.Fatalf("insert got=%+v", got)
	}

	if err := c.Remove(ctx, "111111111111"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got, ok := next(t, seen).(pdu.Remove); !ok || got.SSN != "111111111111" {
		t.Fatalf("remove got=%+v", got)
	}
}

func TestInsertValidatesBeforeDialing(t *testing.T) {
	testlog.Start(t)
	c := testClient("127.0.0.1:1")
	if err := c.Insert(context.Background(), "123", "a", "b"); !errors.Is(err, pdu.ErrInvalidSSN) {
		t.Fatalf("expected ErrInvalidSSN, got %v", err)
	}
	if _, _, err := c.Lookup(context.Background(), "123"); !errors.Is(err, pdu.ErrInvalidSSN) {
		t.Fatalf("expected ErrInvalidSSN from lookup, got %v", err)
	}
	if err := c.Insert(context.Background(), "123456789012", "", ""); !errors.Is(err, ErrEmptyRecord) {
		t.Fatalf("expected ErrEmptyRecord, got %v", err)
	}
}

func TestLookupWaitsForDialBack(t *testing.T) {
	testlog.Start(t)
	addr, _ := fakeNode(t, func(_ net.Conn, p pdu.PDU) {
		req, ok := p.(pdu.Lookup)
		if !ok {
			return
		}
		resp, _ := pdu.NewLookupResponse(req.SSN, "Ada", "ada@example.com")
		go func() {
			_ = Send(context.Background(), req.Sender().String(), time.Second, pdu.NewAlive(), resp)
		}()
	})
	rec, found, err := testClient(addr).Lookup(context.Background(), "222222222222")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !found || rec.Name != "Ada" || rec.Email != "ada@example.com" {
		t.Fatalf("lookup rec=%+v found=%v", rec, found)
	}
}

func TestLookupNotFoundAndTimeout(t *testing.T) {
	testlog.Start(t)
	addr, _ := fakeNode(t, func(_ net.Conn, p pdu.PDU) {
		req := p.(pdu.Lookup)
		resp := pdu.LookupResponse{Type: pdu.TypeLookupResponse, Record: pdu.Record{SSN: req.SSN}}
		go func() { _ = Send(context.Background(), req.Sender().String(), time.Second, resp) }()
	})
	_, found, err := testClient(addr).Lookup(context.Background(), "333333333333")
	if err != nil || found {
		t.Fatalf("not found lookup: found=%v err=%v", found, err)
	}

	silent, _ := fakeNode(t, nil)
	c := testClient(silent)
	c.Timeout = 100 * time.Millisecond
	if _, _, err := c.Lookup(context.Background(), "444444444444"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestStunAndGetNodeRoundTrip(t *testing.T) {
	testlog.Start(t)
	addr, _ := fakeNode(t, func(conn net.Conn, p pdu.PDU) {
		switch p.(type) {
		case pdu.StunLookup:
			_ = stream.WritePDU(conn, pdu.NewStunResponse(0x0a000002))
		case pdu.GetNode:
			_ = stream.WritePDU(conn, pdu.NewGetNodeResponse(0x0a000003, 7400))
		}
	})
	c := testClient(addr)
	ip, err := c.Stun(context.Background())
	if err != nil || ip.String() != "10.0.0.2" {
		t.Fatalf("stun ip=%s err=%v", ip, err)
	}
	node, err := c.GetNode(context.Background())
	if err != nil || node.String() != "10.0.0.3:7400" {
		t.Fatalf("get node=%s err=%v", node, err)
	}
}

func TestRoundTripUnexpectedReply(t *testing.T) {
	testlog.Start(t)
	addr, _ := fakeNode(t, func(conn net.Conn, p pdu.PDU) {
		if _, ok := p.(pdu.StunLookup); ok {
			_ = stream.WritePDU(conn, pdu.NewAlive())
		}
	})
	if _, err := testClient(addr).Stun(context.Background()); !errors.Is(err, ErrUnexpectedReply) {
		t.Fatalf("expected ErrUnexpectedReply, got %v", err)
	}
}

func TestSendDialFailure(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	if err := Send(context.Background(), addr, 200*time.Millisecond, pdu.NewAlive()); err == nil {
		t.Fatalf("expected dial error")
	}
}
