// Package store keeps the value-store records a node owns.
package store

import (
	"errors"
	"sort"
	"sync"

	"github.com/danmuck/ringdht/internal/pdu"
	"github.com/danmuck/ringdht/internal/ring"
)

var (
	ErrClosed     = errors.New("store: closed")
	ErrInvalidKey = errors.New("store: invalid identifier")
	// ErrEmptyRecord rejects a record with no name and no email, which a
	// LookupResponse cannot tell apart from a miss.
	ErrEmptyRecord = errors.New("store: record has no name or email")
)

// Store is keyed by the record identifier.
type Store interface {
	Put(rec pdu.Record) error
	Get(ssn string) (pdu.Record, bool, error)
	Delete(ssn string) (bool, error)
	Len() (int, error)
	// Drain removes and returns every record whose slot falls in r, sorted by identifier.
	Drain(r pdu.KeyRange) ([]pdu.Record, error)
	Close() error
}

// Memory is an in-process Store.
type Memory struct {
	mu     sync.RWMutex
	data   map[string]pdu.Record
	closed bool
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]pdu.Record)}
}

func (m *Memory) Put(rec pdu.Record) error {
	if err := checkRecord(rec); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.data[rec.SSN] = rec
	return nil
}

func (m *Memory) Get(ssn string) (pdu.Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return pdu.Record{}, false, ErrClosed
	}
	rec, ok := m.data[ssn]
	return rec, ok, nil
}

func (m *Memory) Delete(ssn string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	_, ok := m.data[ssn]
	delete(m.data, ssn)
	return ok, nil
}

func (m *Memory) Len() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrClosed
	}
	return len(m.data), nil
}

func (m *Memory) Drain(r pdu.KeyRange) ([]pdu.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]pdu.Record, 0)
	for ssn, rec := range m.data {
		if ring.Contains(r, ring.Slot(ssn)) {
			out = append(out, rec)
			delete(m.data, ssn)
		}
	}
	sortRecords(out)
	return out, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.data = nil
	return nil
}

func checkRecord(rec pdu.Record) error {
	if len(rec.SSN) != pdu.SSNLength {
		return ErrInvalidKey
	}
	if rec.Name == "" && rec.Email == "" {
		return ErrEmptyRecord
	}
	return nil
}

func sortRecords(recs []pdu.Record) {
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].SSN < recs[j].SSN
	})
}
