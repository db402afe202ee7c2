// Package eventlog holds ordered sequences of encoded entries together with
// the codec that reads them, and the container format they are stored in.
//
// Entries stay encoded: counting, slicing and size accounting never decode
// anything, and an entry is decoded only when it is read.
package eventlog

import (
	"fmt"
	"iter"
	"slices"

	"github.com/hazyhaar/repro/binview"
)

// List is an ordered sequence of encoded entries. Entry buffers are never
// modified once added, so lists produced by Slice share them safely.
type List[T any] struct {
	codec   *binview.Codec[T]
	entries [][]byte
	size    int
	err     error
}

// New returns a list over already-encoded entries.
func New[T any](codec *binview.Codec[T], entries ...[]byte) *List[T] {
	l := &List[T]{codec: codec}
	l.AppendRaw(entries...)
	return l
}

// Codec returns the codec entries are read with.
func (l *List[T]) Codec() *binview.Codec[T] { return l.codec }

// Len returns the number of entries.
func (l *List[T]) Len() int { return len(l.entries) }

// Size returns the total encoded size in bytes.
func (l *List[T]) Size() int { return l.size }

// At returns the raw bytes of entry i. Callers must not modify them.
func (l *List[T]) At(i int) []byte { return l.entries[i] }

// Entries returns the raw entries. The slice is a copy; the buffers are
// shared.
func (l *List[T]) Entries() [][]byte { return slices.Clone(l.entries) }

func (l *List[T]) check(i int) error {
	if i < 0 || i >= len(l.entries) {
		return fmt.Errorf("eventlog: index %d out of range [0,%d)", i, len(l.entries))
	}
	return nil
}

// Decode fully decodes entry i.
func (l *List[T]) Decode(i int) (T, error) {
	if err := l.check(i); err != nil {
		var zero T
		return zero, err
	}
	v, err := l.codec.Decode(l.entries[i])
	if err != nil {
		return v, fmt.Errorf("eventlog: entry %d: %w", i, err)
	}
	return v, nil
}

// Over returns a lazy view of entry i.
func (l *List[T]) Over(i int) (*binview.Lens[T], error) {
	if err := l.check(i); err != nil {
		return nil, err
	}
	return l.codec.Over(l.entries[i]), nil
}

// Slice returns entries [start, end) as a new list sharing the buffers.
// Bounds are clamped.
func (l *List[T]) Slice(start, end int) *List[T] {
	start = max(0, min(start, len(l.entries)))
	end = max(start, min(end, len(l.entries)))
	out := &List[T]{codec: l.codec, entries: slices.Clip(l.entries[start:end])}
	for _, e := range out.entries {
		out.size += len(e)
	}
	return out
}

// Append encodes and appends values. Nothing is appended if any value fails
// to encode.
func (l *List[T]) Append(values ...T) error {
	bufs, err := l.encode(values)
	if err != nil {
		return err
	}
	l.AppendRaw(bufs...)
	return nil
}

// AppendRaw appends already-encoded entries.
func (l *List[T]) AppendRaw(bufs ...[]byte) {
	for _, b := range bufs {
		l.entries = append(l.entries, b)
		l.size += len(b)
	}
}

// Prepend encodes values and inserts them, in order, before the first
// entry.
func (l *List[T]) Prepend(values ...T) error {
	bufs, err := l.encode(values)
	if err != nil {
		return err
	}
	l.entries = slices.Insert(slices.Clip(l.entries), 0, bufs...)
	for _, b := range bufs {
		l.size += len(b)
	}
	return nil
}

func (l *List[T]) encode(values []T) ([][]byte, error) {
	bufs := make([][]byte, 0, len(values))
	for i, v := range values {
		b, err := l.codec.Encode(v)
		if err != nil {
			return nil, fmt.Errorf("eventlog: encode value %d: %w", i, err)
		}
		bufs = append(bufs, b)
	}
	return bufs, nil
}

// All yields decoded entries in order. Iteration stops at the first entry
// that fails to decode; Err reports it.
func (l *List[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		l.err = nil
		for i := range l.entries {
			v, err := l.Decode(i)
			if err != nil {
				l.err = err
				return
			}
			if !yield(i, v) {
				return
			}
		}
	}
}

// Err returns the decode error that ended the last All iteration.
func (l *List[T]) Err() error { return l.err }

// Values decodes every entry.
func (l *List[T]) Values() ([]T, error) {
	out := make([]T, 0, len(l.entries))
	for _, v := range l.All() {
		out = append(out, v)
	}
	return out, l.Err()
}
