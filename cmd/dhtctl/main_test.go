package main

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"

	"github.com/danmuck/ringdht/internal/node"
	"github.com/danmuck/ringdht/internal/testutil/testlog"
)

func startNode(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	svc := node.NewService(node.DefaultConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ln.Addr().String()
}

func TestRunStunAndGetNode(t *testing.T) {
	testlog.Start(t)
	addr := startNode(t)

	var out bytes.Buffer
	if err := run([]string{"-addr", addr, "stun"}, &out); err != nil {
		t.Fatalf("stun: %v", err)
	}
	if !strings.Contains(out.String(), `"127.0.0.1"`) {
		t.Fatalf("stun output: %s", out.String())
	}

	out.Reset()
	if err := run([]string{"-addr", addr, "getnode"}, &out); err != nil {
		t.Fatalf("getnode: %v", err)
	}
	if !strings.Contains(out.String(), addr) {
		t.Fatalf("getnode output: %s", out.String())
	}
}

func TestRunInsertThenLookup(t *testing.T) {
	testlog.Start(t)
	addr := startNode(t)
	var out bytes.Buffer
	if err := run([]string{"-addr", addr, "insert", "555555555555", "Grace", "grace@example.com"}, &out); err != nil {
		t.Fatalf("insert: %v", err)
	}
	// The insert and the lookup travel on separate connections.
	for i := 0; i < 50; i++ {
		out.Reset()
		if err := run([]string{"-addr", addr, "lookup", "555555555555"}, &out); err != nil {
			t.Fatalf("lookup: %v", err)
		}
		if strings.Contains(out.String(), `"found": true`) {
			if !strings.Contains(out.String(), `"Grace"`) {
				t.Fatalf("lookup output: %s", out.String())
			}
			return
		}
	}
	t.Fatalf("record never became visible: %s", out.String())
}

func TestRunRejectsBadInput(t *testing.T) {
	testlog.Start(t)
	var out bytes.Buffer
	cases := [][]string{
		{},
		{"frobnicate"},
		{"insert", "123"},
		{"remove"},
		{"insert", "short", "a", "b"},
	}
	for _, args := range cases {
		if err := run(args, &out); err == nil {
			t.Fatalf("args %q: expected error", args)
		}
	}
}
