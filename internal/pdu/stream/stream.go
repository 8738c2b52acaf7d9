// Package stream reassembles PDUs from a byte stream and writes them back out.
package stream

import (
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/ringdht/internal/pdu"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownDiscriminant = errors.New("stream: unknown discriminant")
	ErrBufferLimit         = errors.New("stream: buffered bytes exceed limit")
	ErrInvalidLimits       = errors.New("stream: invalid limits")
)

// Limits constrains reader memory use.
type Limits struct {
	MaxBufferedBytes int
	ReadChunkBytes   int
}

func DefaultLimits() Limits {
	return Limits{
		MaxBufferedBytes: 64 * 1024,
		ReadChunkBytes:   4 * 1024,
	}
}

// Validate requires room for at least one maximal PDU.
func (l Limits) Validate() error {
	if l.MaxBufferedBytes < pdu.MaxSize {
		return fmt.Errorf("%w: max_buffered_bytes=%d below max pdu size %d", ErrInvalidLimits, l.MaxBufferedBytes, pdu.MaxSize)
	}
	if l.ReadChunkBytes <= 0 {
		return fmt.Errorf("%w: read_chunk_bytes=%d", ErrInvalidLimits, l.ReadChunkBytes)
	}
	return nil
}

// Reader keeps unconsumed bytes between reads, so a PDU split across many
// transport reads is decoded once its last byte arrives.
type Reader struct {
	src     io.Reader
	catalog *pdu.Catalog
	limits  Limits
	buf     []byte
	chunk   []byte
}

func NewReader(src io.Reader, limits Limits) *Reader {
	return NewCatalogReader(src, pdu.Default(), limits)
}

func NewCatalogReader(src io.Reader, catalog *pdu.Catalog, limits Limits) *Reader {
	if limits.Validate() != nil {
		limits = DefaultLimits()
	}
	return &Reader{
		src:     src,
		catalog: catalog,
		limits:  limits,
		buf:     make([]byte, 0, limits.ReadChunkBytes),
		chunk:   make([]byte, limits.ReadChunkBytes),
	}
}

// Buffered reports bytes received but not yet returned as a PDU.
func (r *Reader) Buffered() int {
	return len(r.buf)
}

// ReadPDU returns the next complete PDU. It returns io.EOF on a clean close
// between messages and io.ErrUnexpectedEOF when the peer closes mid-message.
// An unknown discriminant leaves the stream unrecoverable.
func (r *Reader) ReadPDU() (pdu.PDU, error) {
	for {
		out := r.catalog.TryDecode(r.buf)
		switch out.Status {
		case pdu.Parsed:
			r.consume(out.Consumed)
			return out.PDU, nil
		case pdu.UnknownDiscriminant:
			log.Debug().Str("component", "stream").Msgf("stream.ReadPDU unknown discriminant=%d buffered=%d", uint8(out.Discriminant), len(r.buf))
			return nil, fmt.Errorf("%w: %d", ErrUnknownDiscriminant, uint8(out.Discriminant))
		}

		if len(r.buf) >= r.limits.MaxBufferedBytes {
			return nil, ErrBufferLimit
		}
		n, err := r.src.Read(r.chunk)
		if n > 0 {
			r.buf = append(r.buf, r.chunk[:n]...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if n > 0 {
					continue
				}
				if len(r.buf) == 0 {
					return nil, io.EOF
				}
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}
}

func (r *Reader) consume(n int) {
	rest := copy(r.buf, r.buf[n:])
	r.buf = r.buf[:rest]
}

// WritePDU writes the full encoding of p.
func WritePDU(w io.Writer, p pdu.PDU) error {
	_, err := w.Write(pdu.Encode(p))
	return err
}

// WriteAll encodes ps back to back and issues a single write.
func WriteAll(w io.Writer, ps ...pdu.PDU) error {
	size := 0
	for _, p := range ps {
		size += p.Size()
	}
	buf := make([]byte, 0, size)
	for _, p := range ps {
		buf = p.AppendTo(buf)
	}
	_, err := w.Write(buf)
	return err
}
