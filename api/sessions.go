package api

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/hazyhaar/repro/capture"
	"github.com/hazyhaar/repro/recorder"
	"github.com/hazyhaar/repro/recording"
)

// ErrSessionNotFound is returned for an unknown live session id.
var ErrSessionNotFound = errors.New("api: live session not found")

// Sources creates the capture source of a live session. *capture.Agent
// implements it.
type Sources interface {
	Source(ctx context.Context, pageURL string, acq capture.Acquire) (recorder.Source, error)
}

// Session describes a live recording.
type Session struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	StartedAt time.Time `json:"startedAt"`
	Events    int       `json:"events"`
	Bytes     int       `json:"bytes"`
}

type session struct {
	ctl     *recorder.Controller
	url     string
	started time.Time
}

func (s *session) describe() Session {
	return Session{ID: s.ctl.ID(), URL: s.url, StartedAt: s.started, Events: s.ctl.Len(), Bytes: s.ctl.Size()}
}

// sessions tracks the live recordings of a Server.
type sessions struct {
	srv *Server
	mu  sync.Mutex
	m   map[string]*session
}

// start records pageURL until stop is called.
func (ss *sessions) start(ctx context.Context, pageURL string, acq capture.Acquire) (Session, error) {
	if ss.srv.sources == nil {
		return Session{}, fmt.Errorf("%w: capture is disabled", errBadRequest)
	}
	src, err := ss.srv.sources.Source(ctx, pageURL, acq)
	if err != nil {
		return Session{}, err
	}
	opts := ss.srv.recorder
	opts.Sources = []recorder.Source{src}
	if ss.srv.persistEvicted {
		opts.Sink = ss.srv.store
	}
	if opts.Logger == nil {
		opts.Logger = ss.srv.logger
	}
	ctl := recorder.New(opts)
	if err := ctl.Start(ss.srv.ctx); err != nil {
		return Session{}, err
	}
	s := &session{ctl: ctl, url: pageURL, started: time.Now().UTC()}

	ss.mu.Lock()
	ss.m[ctl.ID()] = s
	ss.mu.Unlock()
	ss.srv.logger.Info("api: session started", "recording", ctl.ID(), "url", pageURL)
	return s.describe(), nil
}

func (ss *sessions) get(id string) (*session, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	s, ok := ss.m[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (ss *sessions) list() []Session {
	ss.mu.Lock()
	live := make([]*session, 0, len(ss.m))
	for _, s := range ss.m {
		live = append(live, s)
	}
	ss.mu.Unlock()

	out := make([]Session, 0, len(live))
	for _, s := range live {
		out = append(out, s.describe())
	}
	slices.SortFunc(out, func(a, b Session) int { return a.StartedAt.Compare(b.StartedAt) })
	return out
}

// stop ends a session and stores its recording.
func (ss *sessions) stop(ctx context.Context, id string) (*recording.Recording, error) {
	ss.mu.Lock()
	s, ok := ss.m[id]
	delete(ss.m, id)
	ss.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	stopErr := s.ctl.Stop()
	if stopErr != nil {
		ss.srv.logger.Warn("api: session stop", "recording", id, "error", stopErr)
	}
	rec, err := s.ctl.Recording()
	if err != nil {
		return nil, fmt.Errorf("api: freeze %s: %w", id, err)
	}
	if err := ss.srv.store.Put(ctx, rec); err != nil {
		return nil, err
	}
	ss.srv.logger.Info("api: session stored", "recording", id, "events", rec.Len(), "duration_ms", rec.Duration())
	return rec, nil
}

// stopAll stops every session; used on shutdown.
func (ss *sessions) stopAll(ctx context.Context) error {
	ss.mu.Lock()
	ids := make([]string, 0, len(ss.m))
	for id := range ss.m {
		ids = append(ids, id)
	}
	ss.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if _, err := ss.stop(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// since freezes the last d of a live session into a standalone recording.
func (ss *sessions) since(id string, d time.Duration) (*recording.Recording, error) {
	s, err := ss.get(id)
	if err != nil {
		return nil, err
	}
	events, err := s.ctl.SliceSince(d)
	if err != nil {
		return nil, err
	}
	return recording.New(id, events)
}
