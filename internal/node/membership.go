package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/danmuck/ringdht/internal/client"
	"github.com/danmuck/ringdht/internal/pdu"
	"github.com/danmuck/ringdht/internal/pdu/stream"
)

var ErrUnexpectedPDU = errors.New("node: unexpected pdu")

// Join asks bootstrap for a share of its range. The bootstrap answers on the
// same connection with JoinResponse, the records in the new range as Inserts,
// then CloseConnection.
func (s *Service) Join(ctx context.Context, bootstrap string) error {
	bootstrap = strings.TrimSpace(bootstrap)
	s.mu.RLock()
	public, hasPublic, owns := s.public, s.hasPublic, s.owns
	s.mu.RUnlock()
	if !hasPublic {
		return ErrNotListening
	}
	if owns {
		return fmt.Errorf("node: already a ring member")
	}
	finish := s.beginJoin()
	defer finish()

	conn, err := client.Dial(ctx, bootstrap, s.cfg.DialTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()
	stopWatch := closeOnDone(ctx, conn)
	defer stopWatch()

	if err := s.write(conn, pdu.NewJoin(public.Addr, public.Port, 0, 0, 0)); err != nil {
		return fmt.Errorf("join %s: %w", bootstrap, err)
	}
	r := stream.NewReader(conn, s.cfg.Limits)
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	first, err := r.ReadPDU()
	if err != nil {
		return fmt.Errorf("join %s: %w", bootstrap, err)
	}
	resp, ok := first.(pdu.JoinResponse)
	if !ok {
		return fmt.Errorf("%w: %s while joining", ErrUnexpectedPDU, first.PDUType())
	}

	next := resp.Next().String()
	if next == public.String() {
		next = ""
	}
	s.mu.Lock()
	s.owns = true
	s.keys = resp.Range()
	s.successor = next
	s.predecessor = bootstrap
	s.mu.Unlock()
	s.log.Info().
		Str("range", resp.Range().String()).
		Str("successor", next).
		Str("predecessor", bootstrap).
		Msg("joined ring")

	received := 0
	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		p, err := r.ReadPDU()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("join handoff: %w", err)
		}
		if _, done := p.(pdu.CloseConnection); done {
			break
		}
		ins, ok := p.(pdu.Insert)
		if !ok {
			s.log.Debug().Str("type", p.PDUType().String()).Msg("join handoff: ignored pdu")
			continue
		}
		if err := s.store.Put(ins.Record); err != nil {
			return fmt.Errorf("join handoff: %w", err)
		}
		received++
	}
	s.refreshRecordGauge()
	s.log.Info().Int("records", received).Msg("join handoff complete")
	return nil
}

// Leave hands the owned range and its records to the successor, then points
// the predecessor learned on join at that successor.
func (s *Service) Leave(ctx context.Context) error {
	s.mu.RLock()
	owns, keys, succ, pred := s.owns, s.keys, s.successor, s.predecessor
	s.mu.RUnlock()
	if !owns {
		return ErrNotMember
	}
	if succ == "" {
		return ErrNoSuccessor
	}
	succAddr, err := pdu.ParseNodeAddress(succ)
	if err != nil {
		return err
	}

	conn, err := client.Dial(ctx, succ, s.cfg.DialTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()
	stopWatch := closeOnDone(ctx, conn)
	defer stopWatch()

	if err := s.write(conn, pdu.NewNewRange(keys.Start, keys.End)); err != nil {
		return fmt.Errorf("leave: %w", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	ack, err := stream.NewReader(conn, s.cfg.Limits).ReadPDU()
	if err != nil {
		return fmt.Errorf("leave: successor refused range %s: %w", keys, err)
	}
	if _, ok := ack.(pdu.NewRangeResponse); !ok {
		return fmt.Errorf("%w: %s while leaving", ErrUnexpectedPDU, ack.PDUType())
	}

	s.mu.Lock()
	s.owns = false
	s.mu.Unlock()

	moved, err := s.store.Drain(keys)
	if err != nil {
		return fmt.Errorf("leave: drain: %w", err)
	}
	out := make([]pdu.PDU, 0, len(moved)+1)
	for _, rec := range moved {
		out = append(out, pdu.Insert{Type: pdu.TypeInsert, Record: rec})
	}
	out = append(out, pdu.NewCloseConnection())
	if err := s.write(conn, out...); err != nil {
		return fmt.Errorf("leave: handoff: %w", err)
	}
	s.refreshRecordGauge()

	if pred != "" {
		if err := s.send(ctx, pred, pdu.NewLeaving(succAddr.Addr, succAddr.Port)); err != nil {
			s.log.Warn().Err(err).Str("predecessor", pred).Msg("leave: notify predecessor failed")
		}
	}
	s.log.Info().Str("range", keys.String()).Int("records", len(moved)).Str("successor", succ).Msg("left ring")
	return nil
}

// beginJoin holds value PDUs in awaitJoin until the returned func runs. The
// bootstrap forwards to a joiner as soon as it has replied, before the joiner
// has read its range and records.
func (s *Service) beginJoin() func() {
	done := make(chan struct{})
	s.mu.Lock()
	s.joining = done
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		if s.joining == done {
			s.joining = nil
		}
		s.mu.Unlock()
		close(done)
	}
}

func (s *Service) awaitJoin(ctx context.Context) {
	s.mu.RLock()
	joining := s.joining
	s.mu.RUnlock()
	if joining == nil {
		return
	}
	select {
	case <-joining:
	case <-ctx.Done():
	}
}

// closeOnDone closes conn when ctx ends; the returned func stops watching.
func closeOnDone(ctx context.Context, conn net.Conn) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	return func() { close(done) }
}
