package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/danmuck/ringdht/internal/pdu"
	"github.com/danmuck/ringdht/internal/ring"
	bolt "go.etcd.io/bbolt"
)

const (
	bRecords = "records"

	defaultTO = 2 * time.Second
)

type boltRecord struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Bolt is a BoltDB-backed Store.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) a BoltDB database at path.
func OpenBolt(path string) (*Bolt, error) {
	if path == "" {
		return nil, errors.New("store: empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: defaultTO})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bRecords))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) Close() error { return b.db.Close() }

func (b *Bolt) Put(rec pdu.Record) error {
	if err := checkRecord(rec); err != nil {
		return err
	}
	val, err := json.Marshal(boltRecord{Name: rec.Name, Email: rec.Email})
	if err != nil {
		return err
	}
	return b.update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bRecords)).Put([]byte(rec.SSN), val)
	})
}

func (b *Bolt) Get(ssn string) (pdu.Record, bool, error) {
	var (
		rec   pdu.Record
		found bool
	)
	err := b.view(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(bRecords)).Get([]byte(ssn))
		if raw == nil {
			return nil
		}
		var v boltRecord
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		rec = pdu.Record{SSN: ssn, Name: v.Name, Email: v.Email}
		found = true
		return nil
	})
	return rec, found, err
}

func (b *Bolt) Delete(ssn string) (bool, error) {
	var existed bool
	err := b.update(func(tx *bolt.Tx) error {
		bk := tx.Bucket([]byte(bRecords))
		existed = bk.Get([]byte(ssn)) != nil
		if !existed {
			return nil
		}
		return bk.Delete([]byte(ssn))
	})
	return existed, err
}

func (b *Bolt) Len() (int, error) {
	var n int
	err := b.view(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(bRecords)).Stats().KeyN
		return nil
	})
	return n, err
}

// Drain walks keys in order, so the result is already sorted.
func (b *Bolt) Drain(r pdu.KeyRange) ([]pdu.Record, error) {
	out := make([]pdu.Record, 0)
	err := b.update(func(tx *bolt.Tx) error {
		bk := tx.Bucket([]byte(bRecords))
		var drop [][]byte
		if err := bk.ForEach(func(k, v []byte) error {
			if !ring.Contains(r, ring.Slot(string(k))) {
				return nil
			}
			var rec boltRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, pdu.Record{SSN: string(k), Name: rec.Name, Email: rec.Email})
			drop = append(drop, append([]byte(nil), k...))
			return nil
		}); err != nil {
			return err
		}
		for _, k := range drop {
			if err := bk.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Bolt) update(fn func(tx *bolt.Tx) error) error {
	err := b.db.Update(fn)
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return ErrClosed
	}
	return err
}

func (b *Bolt) view(fn func(tx *bolt.Tx) error) error {
	err := b.db.View(fn)
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return ErrClosed
	}
	return err
}
