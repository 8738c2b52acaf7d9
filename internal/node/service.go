// Package node runs one ring member: it owns a slice of the keyspace, stores
// the records that hash into it and forwards everything else to its successor.
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/ringdht/internal/client"
	"github.com/danmuck/ringdht/internal/observability"
	"github.com/danmuck/ringdht/internal/pdu"
	"github.com/danmuck/ringdht/internal/pdu/stream"
	"github.com/danmuck/ringdht/internal/ring"
	"github.com/danmuck/ringdht/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrNotListening = errors.New("node: public address unknown")
	ErrNoSuccessor  = errors.New("node: no successor")
	ErrNotMember    = errors.New("node: not a ring member")
)

// State is a point-in-time view of ring membership.
type State struct {
	ID          string       `json:"id"`
	Public      string       `json:"public"`
	Owns        bool         `json:"owns"`
	Range       pdu.KeyRange `json:"range"`
	Span        int          `json:"span"`
	Successor   string       `json:"successor,omitempty"`
	Predecessor string       `json:"predecessor,omitempty"`
	Records     int          `json:"records"`
	Connections int64        `json:"connections"`
}

// Service is one ring member.
type Service struct {
	cfg   Config
	store store.Store
	log   zerolog.Logger

	mu          sync.RWMutex
	public      pdu.NodeAddress
	hasPublic   bool
	owns        bool
	keys        pdu.KeyRange
	successor   string
	predecessor string
	// joining is closed when an in-flight Join finishes its handoff.
	joining chan struct{}

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
	active  atomic.Int64

	rngMu sync.Mutex
	rng   *rand.Rand

	started time.Time
}

func NewService(cfg Config, st store.Store) *Service {
	cfg = cfg.WithDefaults()
	if st == nil {
		st = store.NewMemory()
	}
	s := &Service{
		cfg:       cfg,
		store:     st,
		log:       observability.Logger("dhtnode", cfg.ID),
		successor: strings.TrimSpace(cfg.Successor),
		conns:     make(map[net.Conn]struct{}),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		started:   time.Now(),
	}
	if strings.TrimSpace(cfg.Join) == "" {
		s.owns = true
		s.keys = cfg.Range
	}
	if addr := strings.TrimSpace(cfg.PublicAddr); addr != "" {
		if public, err := pdu.ParseNodeAddress(addr); err == nil {
			s.public, s.hasPublic = public, true
		}
	}
	observability.RegisterMetrics()
	s.log.Debug().Int("pdu_types", len(pdu.Default().Types())).Msg("pdu catalog ready")
	return s
}

// Run listens, joins when configured, and serves until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	if err := s.adoptListener(ln); err != nil {
		_ = ln.Close()
		return err
	}
	s.log.Info().Str("addr", ln.Addr().String()).Str("public", s.Public().String()).Msg("node listening")

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.Serve(ctx, ln)
	}()

	if bootstrap := strings.TrimSpace(s.cfg.Join); bootstrap != "" {
		if err := s.Join(ctx, bootstrap); err != nil {
			_ = ln.Close()
			<-serveErr
			return err
		}
	}

	adminErr := make(chan error, 1)
	if addr := strings.TrimSpace(s.cfg.AdminAddr); addr != "" {
		go func() {
			adminErr <- s.ServeAdmin(ctx, addr)
		}()
	}

	select {
	case err := <-serveErr:
		return err
	case err := <-adminErr:
		if err != nil {
			return err
		}
		return <-serveErr
	}
}

// Serve runs the accept loop on an existing listener.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	if err := s.adoptListener(ln); err != nil {
		return err
	}
	defer ln.Close()
	go func() {
		<-ctx.Done()
		s.closeAllConns()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.trackConn(conn)
		go s.handleConn(ctx, conn)
	}
}

// Public is the address peers reach this node on.
func (s *Service) Public() pdu.NodeAddress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.public
}

func (s *Service) Snapshot() State {
	s.mu.RLock()
	st := State{
		ID:          s.cfg.ID,
		Owns:        s.owns,
		Successor:   s.successor,
		Predecessor: s.predecessor,
		Connections: s.active.Load(),
	}
	if s.hasPublic {
		st.Public = s.public.String()
	}
	if s.owns {
		st.Range = s.keys
		st.Span = ring.Span(s.keys)
	}
	s.mu.RUnlock()
	if n, err := s.store.Len(); err == nil {
		st.Records = n
	}
	return st
}

// Owner reports whether this node stores ssn.
func (s *Service) Owner(ssn string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owns && ring.Contains(s.keys, ring.Slot(ssn))
}

func (s *Service) adoptListener(ln net.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasPublic {
		return nil
	}
	tcp, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		return fmt.Errorf("%w: listener %s", ErrNotListening, ln.Addr())
	}
	ap := tcp.AddrPort()
	if ap.Addr().IsUnspecified() {
		return fmt.Errorf("%w: set public addr when listening on %s", ErrNotListening, ap)
	}
	public, err := pdu.NodeAddressFrom(ap)
	if err != nil {
		return err
	}
	s.public, s.hasPublic = public, true
	return nil
}

func (s *Service) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	defer s.untrackConn(conn)

	id := uuid.NewString()
	clog := s.log.With().Str("conn", id).Str("remote", conn.RemoteAddr().String()).Logger()
	active := s.active.Add(1)
	observability.ConnectionOpened(s.cfg.ID)
	clog.Debug().Int64("active", active).Msg("conn opened")
	defer func() {
		remaining := s.active.Add(-1)
		observability.ConnectionClosed(s.cfg.ID)
		clog.Debug().Int64("active", remaining).Msg("conn closed")
	}()

	r := stream.NewReader(conn, s.cfg.Limits)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		p, err := r.ReadPDU()
		if err != nil {
			s.readFailed(clog, err)
			return
		}
		observability.RecordPDU(s.cfg.ID, "in", p.PDUType().String())
		if !s.dispatch(ctx, conn, clog, p) {
			return
		}
	}
}

func (s *Service) readFailed(clog zerolog.Logger, err error) {
	var ne net.Error
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
	case errors.Is(err, stream.ErrUnknownDiscriminant):
		observability.RecordDecodeError(s.cfg.ID, "unknown_discriminant")
		clog.Warn().Err(err).Msg("conn terminated")
	case errors.Is(err, stream.ErrBufferLimit):
		observability.RecordDecodeError(s.cfg.ID, "buffer_limit")
		clog.Warn().Err(err).Msg("conn terminated")
	case errors.Is(err, io.ErrUnexpectedEOF):
		observability.RecordDecodeError(s.cfg.ID, "truncated")
		clog.Debug().Err(err).Msg("peer closed mid-message")
	case errors.As(err, &ne) && ne.Timeout():
		clog.Debug().Msg("conn idle timeout")
	default:
		clog.Warn().Err(err).Msg("conn read failed")
	}
}

func (s *Service) write(conn net.Conn, ps ...pdu.PDU) error {
	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	for _, p := range ps {
		if err := stream.WritePDU(conn, p); err != nil {
			return err
		}
		observability.RecordPDU(s.cfg.ID, "out", p.PDUType().String())
	}
	return nil
}

// send delivers ps to addr on a fresh connection.
func (s *Service) send(ctx context.Context, addr string, ps ...pdu.PDU) error {
	start := time.Now()
	err := client.Send(ctx, addr, s.cfg.DialTimeout, ps...)
	observability.RecordDial(s.cfg.ID, time.Since(start), err == nil)
	if err != nil {
		return err
	}
	for _, p := range ps {
		observability.RecordPDU(s.cfg.ID, "out", p.PDUType().String())
	}
	return nil
}

func (s *Service) backoff(attempt int) time.Duration {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return NextBackoffDelay(s.cfg.ReplyBackoff, attempt, s.rng)
}

func (s *Service) refreshRecordGauge() {
	if n, err := s.store.Len(); err == nil {
		observability.SetRecordCount(s.cfg.ID, n)
	}
}

func (s *Service) trackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *Service) untrackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, conn)
}

func (s *Service) closeAllConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
		delete(s.conns, conn)
	}
}
