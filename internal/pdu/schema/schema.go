// Package schema derives encode, size and decode for fixed-width records from an
// ordered field table. Each record type declares its table once; one generic
// routine walks it.
package schema

import (
	"fmt"

	"github.com/danmuck/ringdht/internal/pdu/wire"
)

// Field is one fixed-width field of record type T.
type Field[T any] struct {
	Name string
	Kind wire.Kind

	appendTo func(dst []byte, rec *T) []byte
	readFrom func(r *wire.Reader, rec *T)
}

func U8[T any](name string, at func(*T) *uint8) Field[T] {
	return Field[T]{
		Name:     name,
		Kind:     wire.U8Kind,
		appendTo: func(dst []byte, rec *T) []byte { return wire.AppendU8(dst, *at(rec)) },
		readFrom: func(r *wire.Reader, rec *T) { *at(rec) = r.U8() },
	}
}

func U16[T any](name string, at func(*T) *uint16) Field[T] {
	return Field[T]{
		Name:     name,
		Kind:     wire.U16Kind,
		appendTo: func(dst []byte, rec *T) []byte { return wire.AppendU16(dst, *at(rec)) },
		readFrom: func(r *wire.Reader, rec *T) { *at(rec) = r.U16() },
	}
}

func U32[T any](name string, at func(*T) *uint32) Field[T] {
	return Field[T]{
		Name:     name,
		Kind:     wire.U32Kind,
		appendTo: func(dst []byte, rec *T) []byte { return wire.AppendU32(dst, *at(rec)) },
		readFrom: func(r *wire.Reader, rec *T) { *at(rec) = r.U32() },
	}
}

// Layout is the derived codec for one record type.
type Layout[T any] struct {
	name   string
	fields []Field[T]
	size   int
}

// New builds a layout. It panics on an empty table or a field without accessors,
// which can only happen at package init.
func New[T any](name string, fields ...Field[T]) *Layout[T] {
	if len(fields) == 0 {
		panic(fmt.Sprintf("schema: layout %q has no fields", name))
	}
	size := 0
	for i, f := range fields {
		if f.appendTo == nil || f.readFrom == nil || f.Kind.Size() == 0 {
			panic(fmt.Sprintf("schema: layout %q field[%d] %q is not constructed", name, i, f.Name))
		}
		size += f.Kind.Size()
	}
	return &Layout[T]{
		name:   name,
		fields: append([]Field[T](nil), fields...),
		size:   size,
	}
}

func (l *Layout[T]) Name() string {
	return l.name
}

// Size is the constant encoded width of every T.
func (l *Layout[T]) Size() int {
	return l.size
}

// Fields returns a copy of the field table in wire order.
func (l *Layout[T]) Fields() []Field[T] {
	return append([]Field[T](nil), l.fields...)
}

// Append writes rec's fields in declared order.
func (l *Layout[T]) Append(dst []byte, rec *T) []byte {
	for _, f := range l.fields {
		dst = f.appendTo(dst, rec)
	}
	return dst
}

func (l *Layout[T]) Encode(rec *T) []byte {
	return l.Append(make([]byte, 0, l.size), rec)
}

// Decode reports false when buf is shorter than Size(). Otherwise it consumes
// exactly Size() bytes.
func (l *Layout[T]) Decode(buf []byte) (T, int, bool) {
	var rec T
	r := wire.NewReader(buf)
	if !r.Has(l.size) {
		return rec, 0, false
	}
	for _, f := range l.fields {
		f.readFrom(r, &rec)
	}
	return rec, l.size, true
}
