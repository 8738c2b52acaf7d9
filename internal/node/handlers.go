package node

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/danmuck/ringdht/internal/observability"
	"github.com/danmuck/ringdht/internal/pdu"
	"github.com/danmuck/ringdht/internal/ring"
	"github.com/rs/zerolog"
)

// dispatch applies one inbound PDU. It returns false when the connection
// should be closed.
func (s *Service) dispatch(ctx context.Context, conn net.Conn, clog zerolog.Logger, p pdu.PDU) bool {
	switch p := p.(type) {
	case pdu.Alive:
		clog.Debug().Msg("alive")
		return true
	case pdu.CloseConnection:
		return false
	case pdu.GetNode:
		public := s.Public()
		return s.reply(conn, clog, pdu.NewGetNodeResponse(public.Addr, public.Port))
	case pdu.StunLookup:
		return s.handleStun(conn, clog)
	case pdu.Join:
		s.handleJoin(conn, clog, p)
		return false
	case pdu.NewRange:
		return s.handleNewRange(conn, clog, p)
	case pdu.Leaving:
		s.setSuccessor(clog, p.Successor().String())
		return true
	case pdu.Insert:
		s.awaitJoin(ctx)
		s.handleInsert(ctx, clog, p)
		return true
	case pdu.Remove:
		s.awaitJoin(ctx)
		s.handleRemove(ctx, clog, p)
		return true
	case pdu.Lookup:
		s.awaitJoin(ctx)
		s.handleLookup(ctx, clog, p)
		return true
	default:
		clog.Debug().Str("type", p.PDUType().String()).Msg("unsolicited pdu ignored")
		return true
	}
}

func (s *Service) reply(conn net.Conn, clog zerolog.Logger, ps ...pdu.PDU) bool {
	if err := s.write(conn, ps...); err != nil {
		clog.Warn().Err(err).Msg("reply failed")
		return false
	}
	return true
}

func (s *Service) handleStun(conn net.Conn, clog zerolog.Logger) bool {
	tcp, ok := conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		clog.Warn().Msg("stun: remote is not tcp")
		return false
	}
	remote, err := pdu.NodeAddressFrom(tcp.AddrPort())
	if err != nil {
		clog.Warn().Err(err).Msg("stun: remote is not ipv4")
		return false
	}
	return s.reply(conn, clog, pdu.NewStunResponse(remote.Addr))
}

// handleJoin gives the upper half of the owned range to the joiner, replies on
// the same connection with the range and the records in it, and makes the
// joiner the new successor.
func (s *Service) handleJoin(conn net.Conn, clog zerolog.Logger, p pdu.Join) {
	joiner := p.Src()
	clog = clog.With().Str("joiner", joiner.String()).Logger()

	s.mu.Lock()
	if !s.owns {
		s.mu.Unlock()
		clog.Warn().Err(ErrNotMember).Msg("join refused")
		return
	}
	prevKeys, prevSucc := s.keys, s.successor
	keep, give, err := ring.Split(s.keys)
	if err != nil {
		s.mu.Unlock()
		clog.Warn().Err(err).Str("range", prevKeys.String()).Msg("join refused")
		return
	}
	moved, err := s.store.Drain(give)
	if err != nil {
		s.mu.Unlock()
		clog.Error().Err(err).Msg("join: drain failed")
		return
	}
	next := s.public
	if prevSucc != "" {
		if succ, err := pdu.ParseNodeAddress(prevSucc); err == nil {
			next = succ
		}
	}
	s.keys = keep
	s.successor = joiner.String()
	s.mu.Unlock()

	out := make([]pdu.PDU, 0, len(moved)+2)
	out = append(out, pdu.NewJoinResponse(next.Addr, next.Port, give.Start, give.End))
	for _, rec := range moved {
		out = append(out, pdu.Insert{Type: pdu.TypeInsert, Record: rec})
	}
	out = append(out, pdu.NewCloseConnection())
	if err := s.write(conn, out...); err != nil {
		clog.Error().Err(err).Msg("join: handoff failed, restoring range")
		s.restoreJoin(clog, prevKeys, prevSucc, moved)
		return
	}
	s.refreshRecordGauge()
	clog.Info().
		Str("kept", keep.String()).
		Str("gave", give.String()).
		Int("records", len(moved)).
		Msg("joined")
}

func (s *Service) restoreJoin(clog zerolog.Logger, keys pdu.KeyRange, succ string, moved []pdu.Record) {
	s.mu.Lock()
	s.keys = keys
	s.successor = succ
	s.mu.Unlock()
	for _, rec := range moved {
		if err := s.store.Put(rec); err != nil {
			clog.Error().Err(err).Str("ssn", rec.SSN).Msg("join: restore record failed")
		}
	}
}

// handleNewRange takes over a range handed off by a leaving neighbour.
func (s *Service) handleNewRange(conn net.Conn, clog zerolog.Logger, p pdu.NewRange) bool {
	r := p.Range()
	s.mu.Lock()
	if !s.owns {
		s.owns, s.keys = true, r
	} else {
		merged, err := ring.Merge(s.keys, r)
		if err != nil {
			cur := s.keys
			s.mu.Unlock()
			clog.Warn().Err(err).Str("have", cur.String()).Str("offered", r.String()).Msg("new range refused")
			return false
		}
		s.keys = merged
	}
	now := s.keys
	s.mu.Unlock()
	clog.Info().Str("range", now.String()).Msg("range extended")
	return s.reply(conn, clog, pdu.NewNewRangeResponse())
}

func (s *Service) setSuccessor(clog zerolog.Logger, addr string) {
	s.mu.Lock()
	prev := s.successor
	if addr == s.public.String() {
		addr = ""
	}
	s.successor = addr
	s.mu.Unlock()
	clog.Info().Str("from", prev).Str("to", addr).Msg("successor changed")
}

func (s *Service) handleInsert(ctx context.Context, clog zerolog.Logger, p pdu.Insert) {
	if !s.Owner(p.SSN) {
		s.forward(ctx, clog, p.SSN, p)
		return
	}
	if err := s.store.Put(p.Record); err != nil {
		clog.Error().Err(err).Str("ssn", p.SSN).Msg("insert failed")
		return
	}
	s.refreshRecordGauge()
	clog.Debug().Str("ssn", p.SSN).Msg("inserted")
}

func (s *Service) handleRemove(ctx context.Context, clog zerolog.Logger, p pdu.Remove) {
	if !s.Owner(p.SSN) {
		s.forward(ctx, clog, p.SSN, p)
		return
	}
	existed, err := s.store.Delete(p.SSN)
	if err != nil {
		clog.Error().Err(err).Str("ssn", p.SSN).Msg("remove failed")
		return
	}
	s.refreshRecordGauge()
	clog.Debug().Str("ssn", p.SSN).Bool("existed", existed).Msg("removed")
}

func (s *Service) handleLookup(ctx context.Context, clog zerolog.Logger, p pdu.Lookup) {
	if !s.Owner(p.SSN) {
		s.forward(ctx, clog, p.SSN, p)
		return
	}
	rec, found, err := s.store.Get(p.SSN)
	if err != nil {
		clog.Error().Err(err).Str("ssn", p.SSN).Msg("lookup failed")
		return
	}
	if !found {
		rec = pdu.Record{SSN: p.SSN}
	}
	resp := pdu.LookupResponse{Type: pdu.TypeLookupResponse, Record: rec}
	go s.replyLookup(ctx, clog, p.Sender().String(), resp)
}

// replyLookup dials the requester, retrying with backoff.
func (s *Service) replyLookup(ctx context.Context, clog zerolog.Logger, addr string, resp pdu.LookupResponse) {
	var err error
	for attempt := 1; attempt <= s.cfg.ReplyAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.backoff(attempt - 1)):
			}
		}
		if err = s.send(ctx, addr, resp); err == nil {
			return
		}
		clog.Debug().Err(err).Int("attempt", attempt).Str("to", addr).Msg("lookup reply retry")
	}
	clog.Warn().Err(err).Str("to", addr).Str("ssn", resp.SSN).Msg("lookup reply dropped")
}

func (s *Service) forward(ctx context.Context, clog zerolog.Logger, ssn string, p pdu.PDU) {
	s.mu.RLock()
	succ := s.successor
	s.mu.RUnlock()
	typ := p.PDUType().String()
	if succ == "" {
		observability.RecordForward(s.cfg.ID, typ, false)
		clog.Warn().Err(ErrNoSuccessor).Str("type", typ).Str("ssn", ssn).Msg("forward dropped")
		return
	}
	err := s.send(ctx, succ, p)
	observability.RecordForward(s.cfg.ID, typ, err == nil)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			clog.Warn().Err(err).Str("type", typ).Str("to", succ).Msg("forward failed")
		}
		return
	}
	clog.Debug().Str("type", typ).Str("ssn", ssn).Str("to", succ).Msg("forwarded")
}
