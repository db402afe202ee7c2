package api

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/hazyhaar/repro/capture"
	"github.com/hazyhaar/repro/kit"
	"github.com/hazyhaar/repro/playback"
	"github.com/hazyhaar/repro/recording"
	"github.com/hazyhaar/repro/vdom"
)

var errBadRequest = errors.New("bad request")

type listRequest struct {
	Limit int `json:"limit,omitempty"`
}

type seekRequest struct {
	ID string `json:"id"`
	// At is the offset in milliseconds. Nil seeks to the end.
	At *uint32 `json:"at,omitempty"`
}

// SeekResult is the reconstructed page at a time offset.
type SeekResult struct {
	ID          string                    `json:"id"`
	At          uint32                    `json:"at"`
	Duration    uint32                    `json:"duration"`
	Event       int                       `json:"event"`
	HTML        string                    `json:"html,omitempty"`
	Interaction playback.InteractionState `json:"interaction"`
}

type reportRequest struct {
	ID string  `json:"id"`
	At *uint32 `json:"at,omitempty"`
	// Live reads a live session instead of the store. Since bounds the
	// report to the session's last period ("30s") and implies Live.
	Live  bool   `json:"live,omitempty"`
	Since string `json:"since,omitempty"`
}

type eventsRequest struct {
	ID   string `json:"id"`
	From int    `json:"from,omitempty"`
	To   int    `json:"to,omitempty"`
}

type startSessionRequest struct {
	URL     string `json:"url"`
	Acquire string `json:"acquire,omitempty"`
}

type idRequest struct {
	ID string `json:"id"`
}

// endpoints are shared by the HTTP routes and the MCP tools.
type endpoints struct {
	list, get, remove, events, seek, report kit.Endpoint
	startSession, stopSession, sessions     kit.Endpoint
}

func (s *Server) endpoints() endpoints {
	wrap := func(name string, ep kit.Endpoint) kit.Endpoint {
		return kit.Logging(s.logger, name)(ep)
	}
	return endpoints{
		list:         wrap("list", s.list),
		get:          wrap("get", s.get),
		remove:       wrap("delete", s.remove),
		events:       wrap("events", s.events),
		seek:         wrap("seek", s.seek),
		report:       wrap("report", s.report),
		startSession: wrap("start_session", s.startSession),
		stopSession:  wrap("stop_session", s.stopSession),
		sessions:     wrap("sessions", func(context.Context, any) (any, error) { return s.sessions.list(), nil }),
	}
}

func (s *Server) list(ctx context.Context, req any) (any, error) {
	r := req.(*listRequest)
	return s.store.List(ctx, r.Limit)
}

func (s *Server) get(ctx context.Context, req any) (any, error) {
	return s.store.Get(ctx, req.(*idRequest).ID)
}

func (s *Server) remove(ctx context.Context, req any) (any, error) {
	id := req.(*idRequest).ID
	if err := s.store.Delete(ctx, id); err != nil {
		return nil, err
	}
	return map[string]string{"deleted": id}, nil
}

func (s *Server) events(ctx context.Context, req any) (any, error) {
	r := req.(*eventsRequest)
	rec, err := s.store.Get(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	evs := rec.Events()
	to := r.To
	if to <= 0 || to > evs.Len() {
		to = evs.Len()
	}
	if r.From < 0 || r.From > to {
		return nil, fmt.Errorf("%w: range [%d, %d) outside 0..%d", errBadRequest, r.From, to, evs.Len())
	}
	return evs.Slice(r.From, to).Values()
}

func (s *Server) seek(ctx context.Context, req any) (any, error) {
	r := req.(*seekRequest)
	rec, err := s.store.Get(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	eng, err := playback.FromRecording(rec, playback.WithLogger(kit.Logger(ctx)))
	if err != nil {
		return nil, err
	}
	at := eng.Duration()
	if r.At != nil {
		at = min(*r.At, at)
	}
	if err := eng.SeekToTime(at); err != nil {
		return nil, err
	}
	idx, elapsed := eng.Cursor()
	res := SeekResult{ID: rec.ID(), At: elapsed, Duration: eng.Duration(), Event: idx, Interaction: eng.Interaction()}
	if tree := eng.Tree(); tree != nil {
		if res.HTML, err = vdom.RenderString(*tree); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (s *Server) report(ctx context.Context, req any) (any, error) {
	r := req.(*reportRequest)
	var (
		rec *recording.Recording
		err error
	)
	if r.Live || r.Since != "" {
		d := time.Duration(math.MaxInt64)
		if r.Since != "" {
			var perr error
			if d, perr = time.ParseDuration(r.Since); perr != nil || d <= 0 {
				return nil, fmt.Errorf("%w: since %q", errBadRequest, r.Since)
			}
		}
		rec, err = s.sessions.since(r.ID, d)
	} else {
		rec, err = s.store.Get(ctx, r.ID)
	}
	if err != nil {
		return nil, err
	}
	at := rec.Duration()
	if r.At != nil {
		at = *r.At
	}
	return s.reports.FromRecording(rec, at)
}

func (s *Server) startSession(ctx context.Context, req any) (any, error) {
	r := req.(*startSessionRequest)
	if r.URL == "" {
		return nil, fmt.Errorf("%w: url is required", errBadRequest)
	}
	acq, err := capture.ParseAcquire(r.Acquire)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return s.sessions.start(ctx, r.URL, acq)
}

func (s *Server) stopSession(ctx context.Context, req any) (any, error) {
	rec, err := s.sessions.stop(ctx, req.(*idRequest).ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"id": rec.ID(), "events": rec.Len(), "duration": rec.Duration()}, nil
}
