package wire

// Reader walks a borrowed buffer with an explicit offset. The buffer itself is
// never modified or re-sliced; callers advance their own cursor by Offset().
type Reader struct {
	buf []byte
	off int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Has reports whether at least n unread bytes remain.
func (r *Reader) Has(n int) bool {
	return n >= 0 && len(r.buf)-r.off >= n
}

func (r *Reader) Offset() int {
	return r.off
}

func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

// U8, U16 and U32 assume Has was checked for the width.
func (r *Reader) U8() uint8 {
	v, n := U8(r.buf[r.off:])
	r.off += n
	return v
}

func (r *Reader) U16() uint16 {
	v, n := U16(r.buf[r.off:])
	r.off += n
	return v
}

func (r *Reader) U32() uint32 {
	v, n := U32(r.buf[r.off:])
	r.off += n
	return v
}

// Bytes copies the next n bytes. It reports false without moving when fewer
// than n bytes remain.
func (r *Reader) Bytes(n int) ([]byte, bool) {
	if !r.Has(n) {
		return nil, false
	}
	out := make([]byte, n)
	copy(out, r.buf[r.off:r.off+n])
	r.off += n
	return out, true
}

// LengthPrefixed reads a one-byte length followed by that many bytes.
func (r *Reader) LengthPrefixed() ([]byte, bool) {
	if !r.Has(1) {
		return nil, false
	}
	n := int(r.buf[r.off])
	if !r.Has(1 + n) {
		return nil, false
	}
	r.off++
	return r.Bytes(n)
}
