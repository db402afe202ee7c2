package recorder

import (
	"context"
	"sync"

	"github.com/hazyhaar/repro/event"
	"github.com/hazyhaar/repro/idgen"
)

var tailID = idgen.ULID()

// Subscription is a live tail of the controller's events. C delivers every
// event pushed after Tail returned, in push order, and is closed when the
// subscription completes.
type Subscription struct {
	ID string
	C  <-chan event.SourceEvent

	out      chan event.SourceEvent
	wake     chan struct{}
	done     chan struct{}
	finished chan struct{}
	stop     sync.Once
	unsub    func()
	limit    int

	mu      sync.Mutex
	queue   []event.SourceEvent
	closing bool
	err     error
}

// Tail subscribes to pushed events. When interrupt returns true for an
// event, that event is dropped, the events queued before it are still
// delivered, and C is closed. A nil interrupt stops at CloseRecording.
// Cancelling ctx or calling Unsubscribe closes C without delivering what
// is still queued.
func (c *Controller) Tail(ctx context.Context, interrupt func(event.SourceEvent) bool) *Subscription {
	if interrupt == nil {
		interrupt = event.IsClose
	}
	s := &Subscription{
		ID:       tailID(),
		out:      make(chan event.SourceEvent),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		limit:    c.opts.TailBuffer,
	}
	s.C = s.out
	s.unsub = c.buf.OnPush(func(r record) {
		e, err := event.Codec.Decode(r.data)
		if err != nil {
			c.opts.Logger.Warn("recorder: tail decode", "subscription", s.ID, "error", err)
			return
		}
		s.offer(e, interrupt)
	})
	go s.forward(ctx)
	c.opts.Logger.Debug("recorder: tail opened", "subscription", s.ID)
	return s
}

// Follow returns a snapshot of the live state together with a tail of
// every event pushed after it. Nothing is missed or repeated in between.
func (c *Controller) Follow(ctx context.Context, interrupt func(event.SourceEvent) bool) (event.SourceEvent, *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked(), c.Tail(ctx, interrupt)
}

func (s *Subscription) offer(e event.SourceEvent, interrupt func(event.SourceEvent) bool) {
	s.mu.Lock()
	switch {
	case s.closing:
	case interrupt(e):
		s.closing = true
	case len(s.queue) >= s.limit:
		s.closing = true
		s.err = ErrSlowConsumer
	default:
		s.queue = append(s.queue, e)
	}
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) forward(ctx context.Context) {
	defer close(s.finished)
	defer close(s.out)
	defer s.unsub()
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			closing := s.closing
			s.mu.Unlock()
			if closing {
				return
			}
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			case <-ctx.Done():
				s.fail(ctx.Err())
				return
			}
		}
		e := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- e:
		case <-s.done:
			return
		case <-ctx.Done():
			s.fail(ctx.Err())
			return
		}
	}
}

func (s *Subscription) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closing = true
	s.queue = nil
	if s.err == nil {
		s.err = err
	}
}

// Unsubscribe ends the subscription. Nothing is delivered on C after it
// returns.
func (s *Subscription) Unsubscribe() {
	s.stop.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.queue = nil
		s.mu.Unlock()
		close(s.done)
	})
	<-s.finished
}

// Err reports why the subscription ended early: ErrSlowConsumer when the
// reader fell more than the tail buffer behind, or the context error.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
