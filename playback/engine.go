// Package playback reconstructs the page state at any point of an event
// log: the document tree and the interaction values at a cursor.
//
// Seeking forward applies the events after the cursor. Seeking backward
// within the events applied since the last snapshot reverts patches.
// Anything else restarts from the nearest earlier snapshot, located by a
// binary search over event times read without decoding payloads.
package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hazyhaar/repro/binview"
	"github.com/hazyhaar/repro/event"
	"github.com/hazyhaar/repro/eventlog"
	"github.com/hazyhaar/repro/patch"
	"github.com/hazyhaar/repro/recording"
	"github.com/hazyhaar/repro/vdom"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Default slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Engine replays one event log. It is not safe for concurrent use.
type Engine struct {
	events   *eventlog.List[event.SourceEvent]
	logger   *slog.Logger
	duration uint32

	dom    *vdom.Editor
	track  track
	window []event.SourceEvent // decoded events[base:next], window[0] is a snapshot
	base   int
	next   int // events[:next] are applied
	at     uint32
}

// New returns an engine positioned on the first event, which must be a
// Snapshot.
func New(events *eventlog.List[event.SourceEvent], opts ...Option) (*Engine, error) {
	e := &Engine{
		events: events,
		logger: slog.Default(),
		dom:    vdom.NewEditor(),
	}
	for _, o := range opts {
		o(e)
	}
	if events.Len() == 0 {
		return nil, ErrNoSnapshot
	}
	typ, err := e.typeAt(0)
	if err != nil {
		return nil, err
	}
	if typ != event.TypeSnapshot {
		return nil, ErrNoSnapshot
	}
	if e.duration, err = e.timeAt(events.Len() - 1); err != nil {
		return nil, err
	}
	if err := e.SeekToEvent(0); err != nil {
		return nil, err
	}
	return e, nil
}

// FromRecording is New over a recording's events.
func FromRecording(r *recording.Recording, opts ...Option) (*Engine, error) {
	return New(r.Events(), opts...)
}

func (e *Engine) lens(i int) (*binview.Lens[event.SourceEvent], error) {
	l, err := e.events.Over(i)
	if err != nil {
		return nil, fmt.Errorf("playback: %w", err)
	}
	return l, nil
}

func (e *Engine) timeAt(i int) (uint32, error) {
	l, err := e.lens(i)
	if err != nil {
		return 0, err
	}
	t, err := binview.Read(l, event.TimeField)
	if err != nil {
		return 0, fmt.Errorf("playback: event %d time: %w", i, err)
	}
	return t, nil
}

func (e *Engine) typeAt(i int) (event.Type, error) {
	l, err := e.lens(i)
	if err != nil {
		return 0, err
	}
	t, err := binview.Read(l, event.TypeField)
	if err != nil {
		return 0, fmt.Errorf("playback: event %d type: %w", i, err)
	}
	return t, nil
}

// Duration is the time of the last event.
func (e *Engine) Duration() uint32 { return e.duration }

// Len returns the number of events.
func (e *Engine) Len() int { return e.events.Len() }

// Cursor returns the index of the last applied event and the elapsed time.
func (e *Engine) Cursor() (index int, elapsed uint32) { return e.next - 1, e.at }

// Tree returns the document at the cursor, or nil when the page has none.
func (e *Engine) Tree() *vdom.VTree {
	if e.dom.Len() == 0 {
		return nil
	}
	t := e.dom.Tree()
	return &t
}

// Interaction returns the interaction values at the cursor time.
func (e *Engine) Interaction() InteractionState { return e.track.state(e.at) }

// SeekToTime moves the cursor to t: every event stamped at or before t is
// applied, in log order when several share a timestamp.
func (e *Engine) SeekToTime(t uint32) error {
	var serr error
	target := sort.Search(e.events.Len(), func(i int) bool {
		ti, err := e.timeAt(i)
		if err != nil && serr == nil {
			serr = err
		}
		return ti > t
	})
	if serr != nil {
		return serr
	}
	return e.seek(max(target, 1), t)
}

// SeekToEvent moves the cursor onto event i, applying it.
func (e *Engine) SeekToEvent(i int) error {
	if i < 0 || i >= e.events.Len() {
		return fmt.Errorf("%w: %d of %d", ErrOutOfRange, i, e.events.Len())
	}
	t, err := e.timeAt(i)
	if err != nil {
		return err
	}
	return e.seek(i+1, t)
}

func (e *Engine) seek(target int, at uint32) error {
	var err error
	switch {
	case e.next > 0 && target >= e.next:
		err = e.forward(target)
	case e.next > 0 && target > e.base:
		e.rewind(target)
	default:
		err = e.reseek(target)
	}
	if err != nil {
		return err
	}
	e.at = at
	return nil
}

// lastSnapshot returns the index of the last snapshot before target.
func (e *Engine) lastSnapshot(target int) (int, error) {
	for i := target - 1; i >= 0; i-- {
		typ, err := e.typeAt(i)
		if err != nil {
			return 0, err
		}
		if typ == event.TypeSnapshot {
			return i, nil
		}
	}
	return 0, ErrNoSnapshot
}

func (e *Engine) reseek(target int) error {
	snap, err := e.lastSnapshot(target)
	if err != nil {
		return err
	}
	e.logger.Debug("playback: reseek", "snapshot", snap, "target", target)
	e.next = snap
	return e.applyUntil(target)
}

func (e *Engine) forward(target int) error {
	snap, err := e.lastSnapshot(target)
	if err != nil {
		return err
	}
	if snap >= e.next {
		e.next = snap
	}
	return e.applyUntil(target)
}

func (e *Engine) applyUntil(target int) error {
	for ; e.next < target; e.next++ {
		ev, err := e.events.Decode(e.next)
		if err != nil {
			return fmt.Errorf("playback: event %d: %w", e.next, err)
		}
		e.apply(e.next, ev)
	}
	return nil
}

func (e *Engine) apply(i int, ev event.SourceEvent) {
	switch p := ev.Data.(type) {
	case event.Snapshot:
		if p.DOM != nil {
			e.dom.Reset(*p.DOM)
		} else {
			e.dom.Reset(vdom.VTree{})
		}
		e.track.reset(p.Interaction)
		e.base = i
		e.window = e.window[:0]
	case event.DOMPatch:
		if err := patch.ApplyTo(e.dom, p.Patch); err != nil {
			e.logger.Warn("playback: patch skipped", "event", i, "kind", p.Patch.Kind(), "error", err)
		}
	case event.InteractionEvent:
		e.track.apply(ev.Time, p.Interaction)
	}
	e.window = append(e.window, ev)
}

// rewind reverts the applied events after target, newest first.
func (e *Engine) rewind(target int) {
	keep := target - e.base
	for i := len(e.window) - 1; i >= keep; i-- {
		if p, ok := e.window[i].Data.(event.DOMPatch); ok {
			if err := patch.RevertTo(e.dom, p.Patch); err != nil {
				e.logger.Warn("playback: revert skipped", "event", e.base+i, "error", err)
			}
		}
	}
	e.window = e.window[:keep]
	e.next = target

	e.track.reset(e.window[0].Data.(event.Snapshot).Interaction)
	for _, ev := range e.window[1:] {
		if p, ok := ev.Data.(event.InteractionEvent); ok {
			e.track.apply(ev.Time, p.Interaction)
		}
	}
}

// Advance moves the cursor delta forward in time, stopping at the end.
// It reports whether the end was reached.
func (e *Engine) Advance(delta time.Duration) (bool, error) {
	t := min(uint64(e.at)+uint64(max(delta.Milliseconds(), 0)), uint64(e.duration))
	if err := e.SeekToTime(uint32(t)); err != nil {
		return false, err
	}
	return e.at >= e.duration, nil
}

// Play advances by frame on every tick and calls fn after each step, until
// the end of the log, ctx is done, or fn returns an error.
func (e *Engine) Play(ctx context.Context, frame time.Duration, fn func(*Engine) error) error {
	t := time.NewTicker(frame)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			done, err := e.Advance(frame)
			if err != nil {
				return err
			}
			if fn != nil {
				if err := fn(e); err != nil {
					return err
				}
			}
			if done {
				return nil
			}
		}
	}
}
