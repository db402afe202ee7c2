// Package recbuf is the in-memory, byte-budgeted FIFO that accumulates
// encoded events while a recording is live.
//
// Push never evicts. When the budget is exceeded it schedules a single
// eviction pass on the configured Scheduler, so the producer path only pays
// for an append. Between a push and that pass the buffer may be over
// budget.
package recbuf

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler runs fn at some later idle point.
type Scheduler func(fn func())

// Deferred schedules fn on its own goroutine after a zero delay.
func Deferred() Scheduler {
	return func(fn func()) { time.AfterFunc(0, fn) }
}

// Options configures a Buffer.
type Options[T any] struct {
	// MaxBytes is the byte budget. Zero or less disables eviction.
	MaxBytes int
	// SizeOf returns the byte size accounted for an entry.
	SizeOf func(T) int
	// Scheduler runs eviction passes. Defaults to Deferred().
	Scheduler Scheduler
	Logger    *slog.Logger
}

// Bytes is the SizeOf for encoded entries.
func Bytes(b []byte) int { return len(b) }

// Buffer is a FIFO with a byte budget. It is safe for concurrent use; pushes
// are serialised, and subscribers see them in push order exactly once.
type Buffer[T any] struct {
	opts Options[T]

	mu      sync.Mutex
	entries []T
	size    int
	pending atomic.Bool

	// dispatch orders subscriber callbacks across concurrent pushes.
	dispatch sync.Mutex

	subMu     sync.Mutex
	nextSub   uint64
	pushSubs  map[uint64]func(T)
	evictSubs map[uint64]func([]T)
}

// New creates a buffer.
func New[T any](opts Options[T]) *Buffer[T] {
	if opts.Scheduler == nil {
		opts.Scheduler = Deferred()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SizeOf == nil {
		opts.SizeOf = func(T) int { return 0 }
	}
	return &Buffer[T]{
		opts:      opts,
		pushSubs:  make(map[uint64]func(T)),
		evictSubs: make(map[uint64]func([]T)),
	}
}

// Push appends entry and notifies push subscribers synchronously.
// Subscribers must not push into the same buffer.
func (b *Buffer[T]) Push(entry T) {
	b.dispatch.Lock()
	b.mu.Lock()
	b.entries = append(b.entries, entry)
	b.size += b.opts.SizeOf(entry)
	over := b.opts.MaxBytes > 0 && b.size > b.opts.MaxBytes
	b.mu.Unlock()

	for _, fn := range b.pushSubscribers() {
		fn(entry)
	}
	b.dispatch.Unlock()

	if over && b.pending.CompareAndSwap(false, true) {
		b.opts.Scheduler(b.evict)
	}
}

// evict drops entries from the front until the buffer fits its budget and
// hands the batch to evict subscribers.
func (b *Buffer[T]) evict() {
	b.mu.Lock()
	n, freed := 0, 0
	for n < len(b.entries) && b.size-freed > b.opts.MaxBytes {
		freed += b.opts.SizeOf(b.entries[n])
		n++
	}
	var batch []T
	if n > 0 {
		batch = make([]T, n)
		copy(batch, b.entries[:n])
		clear(b.entries[:n])
		b.entries = b.entries[n:]
		b.size -= freed
	}
	size := b.size
	// Reset under the lock: a push that sees the new size can schedule again.
	b.pending.Store(false)
	b.mu.Unlock()

	if n == 0 {
		return
	}
	b.opts.Logger.Debug("recbuf: evicted", "entries", n, "bytes", freed, "size", size)
	for _, fn := range b.evictSubscribers() {
		fn(batch)
	}
}

// Flush runs eviction now instead of waiting for the scheduler.
func (b *Buffer[T]) Flush() {
	if b.opts.MaxBytes <= 0 {
		return
	}
	b.mu.Lock()
	over := b.size > b.opts.MaxBytes
	b.mu.Unlock()
	if over {
		b.pending.Store(true)
		b.evict()
	}
}

// Pending reports whether an eviction pass is scheduled.
func (b *Buffer[T]) Pending() bool { return b.pending.Load() }

// Peek returns the oldest entry.
func (b *Buffer[T]) Peek() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var zero T
	if len(b.entries) == 0 {
		return zero, false
	}
	return b.entries[0], true
}

// PeekLast returns the newest entry.
func (b *Buffer[T]) PeekLast() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var zero T
	if len(b.entries) == 0 {
		return zero, false
	}
	return b.entries[len(b.entries)-1], true
}

// Len returns the number of entries.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Size returns the accounted byte size.
func (b *Buffer[T]) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Copy returns the entries, oldest first, decoupled from later pushes and
// evictions.
func (b *Buffer[T]) Copy() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]T, len(b.entries))
	copy(out, b.entries)
	return out
}

// Clear drops every entry without notifying evict subscribers.
func (b *Buffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = nil
	b.size = 0
}

// OnPush registers fn for every subsequent push. Call the returned function
// to unsubscribe.
func (b *Buffer[T]) OnPush(fn func(T)) (unsubscribe func()) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	b.nextSub++
	id := b.nextSub
	b.pushSubs[id] = fn
	return func() {
		b.subMu.Lock()
		defer b.subMu.Unlock()
		delete(b.pushSubs, id)
	}
}

// OnEvict registers fn for every eviction pass that removed entries.
func (b *Buffer[T]) OnEvict(fn func([]T)) (unsubscribe func()) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	b.nextSub++
	id := b.nextSub
	b.evictSubs[id] = fn
	return func() {
		b.subMu.Lock()
		defer b.subMu.Unlock()
		delete(b.evictSubs, id)
	}
}

// pushSubscribers returns the current push subscribers in registration
// order.
func (b *Buffer[T]) pushSubscribers() []func(T) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	return ordered(b.pushSubs)
}

func (b *Buffer[T]) evictSubscribers() []func([]T) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	return ordered(b.evictSubs)
}

func ordered[F any](subs map[uint64]F) []F {
	if len(subs) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]F, len(ids))
	for i, id := range ids {
		out[i] = subs[id]
	}
	return out
}
