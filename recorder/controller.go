// Package recorder drives a live recording: it attaches capture sources,
// keeps the live page state in step with what they push, encodes every
// event into a byte-budgeted buffer and serves slices, snapshots and live
// tails of that buffer.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/hazyhaar/repro/binview"
	"github.com/hazyhaar/repro/event"
	"github.com/hazyhaar/repro/eventlog"
	"github.com/hazyhaar/repro/recbuf"
	"github.com/hazyhaar/repro/recording"
)

// record is one buffered event. seq is global to the controller so that
// evictions from an earlier recording can be told apart.
type record struct {
	seq  uint64
	time uint32
	data []byte
}

// Controller is the Idle -> Started -> Idle state machine around one
// recording at a time. All writes to the live state and the buffer happen
// under one mutex.
type Controller struct {
	opts Options
	buf  *recbuf.Buffer[record]

	mu       sync.Mutex
	folded   *sync.Cond // signalled when evicted entries reach base
	started  bool
	stopping bool
	id       string
	startAt  time.Time
	last     uint32
	nextSeq  uint64
	live     *state
	base     *state // state before the oldest buffered entry
	baseNext uint64 // seq of the oldest entry not folded into base
	ctx      context.Context
	cancel   context.CancelFunc
	attached []Source
	wg       sync.WaitGroup
}

// New creates an idle controller.
func New(opts Options) *Controller {
	opts.applyDefaults()
	c := &Controller{
		opts: opts,
		live: newState(),
		base: newState(),
		ctx:  context.Background(),
	}
	c.folded = sync.NewCond(&c.mu)
	c.buf = recbuf.New(recbuf.Options[record]{
		MaxBytes:  opts.MaxBytes,
		SizeOf:    func(r record) int { return len(r.data) },
		Scheduler: opts.Scheduler,
		Logger:    opts.Logger,
	})
	c.buf.OnEvict(c.fold)
	return c
}

// Start begins a new recording: the buffer is reset, an initial snapshot is
// pushed and every source is attached. If a source fails to attach, the
// ones already attached are detached and the controller stays idle.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.started, c.stopping = true, false
	c.id = c.opts.IDGen()
	c.startAt = c.opts.Clock()
	c.last = 0
	c.buf.Clear()
	c.live, c.base = newState(), newState()
	c.baseNext = c.nextSeq
	c.ctx, c.cancel = runCtx, cancel
	err := c.pushLocked(c.live.snapshot())
	c.mu.Unlock()
	if err != nil {
		c.abort(nil)
		return err
	}

	var attached []Source
	for _, src := range c.opts.Sources {
		if err := src.Attach(runCtx, c); err != nil {
			c.abort(attached)
			return fmt.Errorf("recorder: attach %s: %w", src.Name(), err)
		}
		attached = append(attached, src)
	}

	c.mu.Lock()
	c.attached = attached
	c.mu.Unlock()

	if iv := c.opts.SnapshotInterval; iv > 0 {
		c.wg.Add(1)
		go c.snapshotLoop(runCtx, iv)
	}
	c.opts.Logger.Info("recorder: started", "recording", c.id, "sources", len(attached))
	return nil
}

func (c *Controller) abort(attached []Source) {
	for _, src := range attached {
		if err := src.Detach(); err != nil {
			c.opts.Logger.Warn("recorder: detach after failed start", "source", src.Name(), "error", err)
		}
	}
	c.mu.Lock()
	c.cancel()
	c.started = false
	c.mu.Unlock()
}

func (c *Controller) snapshotLoop(ctx context.Context, every time.Duration) {
	defer c.wg.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := c.Checkpoint(); err != nil && !errors.Is(err, ErrNotStarted) {
				c.opts.Logger.Warn("recorder: periodic snapshot", "error", err)
			}
		}
	}
}

// Stop detaches the sources, pushes CloseRecording and returns to idle.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if !c.started || c.stopping {
		c.mu.Unlock()
		return ErrNotStarted
	}
	c.stopping = true
	sources := c.attached
	c.attached = nil
	cancel := c.cancel
	c.mu.Unlock()

	var errs []error
	for _, src := range sources {
		if err := src.Detach(); err != nil {
			errs = append(errs, fmt.Errorf("recorder: detach %s: %w", src.Name(), err))
		}
	}
	cancel()
	c.wg.Wait()

	c.mu.Lock()
	errs = append(errs, c.pushLocked(event.CloseRecording{}))
	c.started, c.stopping = false, false
	id, last := c.id, c.last
	c.mu.Unlock()

	c.opts.Logger.Info("recorder: stopped", "recording", id, "duration_ms", last)
	return errors.Join(errs...)
}

// IsStarted reports whether a recording is live.
func (c *Controller) IsStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// ID returns the current (or last) recording id.
func (c *Controller) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Push stamps p with the time since Start, folds it into the live state
// and buffers its encoding. A payload that fails validation, or a patch
// that cannot apply, is rejected and not recorded.
func (c *Controller) Push(p event.Payload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return ErrNotStarted
	}
	return c.pushLocked(p)
}

func (c *Controller) pushLocked(p event.Payload) error {
	if snap, ok := p.(event.Snapshot); ok {
		p = c.live.complete(snap)
	}
	now := c.elapsed()
	e := event.New(now, p)
	data, err := event.Codec.Encode(e)
	if err != nil {
		return fmt.Errorf("recorder: push %s: %w", e.Type(), err)
	}
	if err := c.live.apply(p); err != nil {
		return fmt.Errorf("recorder: push %s: %w", e.Type(), err)
	}
	c.buf.Push(record{seq: c.nextSeq, time: now, data: data})
	c.nextSeq++
	return nil
}

// elapsed returns milliseconds since Start, never going backwards.
func (c *Controller) elapsed() uint32 {
	ms := c.opts.Clock().Sub(c.startAt).Milliseconds()
	ms = max(ms, int64(c.last))
	ms = min(ms, math.MaxUint32)
	c.last = uint32(ms)
	return c.last
}

// Snapshot returns the live state as a Snapshot event without recording
// it.
func (c *Controller) Snapshot() event.SourceEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() event.SourceEvent {
	t := c.last
	if c.started {
		t = c.elapsed()
	}
	return event.New(t, c.live.snapshot())
}

// Checkpoint records a snapshot of the live state.
func (c *Controller) Checkpoint() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return ErrNotStarted
	}
	return c.pushLocked(c.live.snapshot())
}

// fold is the buffer's eviction subscriber: evicted entries are applied to
// base, then handed to the sink.
func (c *Controller) fold(batch []record) {
	c.mu.Lock()
	var persist [][]byte
	for _, r := range batch {
		if r.seq < c.baseNext {
			continue
		}
		e, err := event.Codec.Decode(r.data)
		if err == nil {
			err = c.base.apply(e.Data)
		}
		if err != nil {
			c.opts.Logger.Warn("recorder: fold evicted entry", "seq", r.seq, "error", err)
		}
		c.baseNext = r.seq + 1
		persist = append(persist, r.data)
	}
	c.folded.Broadcast()
	ctx, id := c.ctx, c.id
	c.mu.Unlock()

	if c.opts.Sink == nil || len(persist) == 0 {
		return
	}
	if err := c.opts.Sink.Persist(ctx, id, persist); err != nil {
		c.opts.Logger.Error("recorder: persist evicted entries", "recording", id, "entries", len(persist), "error", err)
	}
}

// view returns the buffered records together with a copy of the state that
// precedes the first of them. Caller holds c.mu.
func (c *Controller) view() ([]record, *state) {
	for {
		recs := c.buf.Copy()
		first := c.nextSeq
		if len(recs) > 0 {
			first = recs[0].seq
		}
		switch {
		case c.baseNext == first:
			return recs, c.base.clone()
		case c.baseNext < first:
			// An eviction pass removed entries it has not folded yet.
			c.folded.Wait()
		}
	}
}

// Len returns the number of buffered events.
func (c *Controller) Len() int { return c.buf.Len() }

// Size returns the buffered byte size.
func (c *Controller) Size() int { return c.buf.Size() }

// Slice returns buffered events [from, to) as an immutable list. If the
// first of them is not a snapshot, a snapshot of the state at that point is
// prepended so the slice can be played back on its own.
func (c *Controller) Slice(from, to int) (*eventlog.List[event.SourceEvent], error) {
	c.mu.Lock()
	recs, base := c.view()
	c.mu.Unlock()
	return slice(recs, base, from, to)
}

// SliceSince returns the events of the last d.
func (c *Controller) SliceSince(d time.Duration) (*eventlog.List[event.SourceEvent], error) {
	c.mu.Lock()
	recs, base := c.view()
	now := int64(c.last)
	if c.started {
		now = int64(c.elapsed())
	}
	c.mu.Unlock()

	cutoff := now - d.Milliseconds()
	from := len(recs)
	for i, r := range recs {
		if int64(r.time) >= cutoff {
			from = i
			break
		}
	}
	return slice(recs, base, from, len(recs))
}

func slice(recs []record, base *state, from, to int) (*eventlog.List[event.SourceEvent], error) {
	from = max(0, min(from, len(recs)))
	to = max(from, min(to, len(recs)))
	out := eventlog.New(event.Codec)
	for _, r := range recs[from:to] {
		out.AppendRaw(r.data)
	}
	if from == to {
		return out, nil
	}

	typ, err := binview.Read(event.Codec.Over(recs[from].data), event.TypeField)
	if err != nil {
		return nil, fmt.Errorf("recorder: slice: %w", err)
	}
	if typ == event.TypeSnapshot {
		return out, nil
	}
	for _, r := range recs[:from] {
		e, err := event.Codec.Decode(r.data)
		if err != nil {
			return nil, fmt.Errorf("recorder: slice: replay %d: %w", r.seq, err)
		}
		if err := base.apply(e.Data); err != nil {
			return nil, fmt.Errorf("recorder: slice: replay %d: %w", r.seq, err)
		}
	}
	if err := out.Prepend(event.New(recs[from].time, base.snapshot())); err != nil {
		return nil, fmt.Errorf("recorder: slice: %w", err)
	}
	return out, nil
}

// Recording freezes the buffered events into a Recording.
func (c *Controller) Recording() (*recording.Recording, error) {
	c.mu.Lock()
	recs, base := c.view()
	id := c.id
	c.mu.Unlock()
	if id == "" {
		return nil, ErrNotStarted
	}
	events, err := slice(recs, base, 0, len(recs))
	if err != nil {
		return nil, err
	}
	return recording.New(id, events)
}
