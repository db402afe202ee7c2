package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/repro/binview"
	"github.com/hazyhaar/repro/kit"
	"github.com/hazyhaar/repro/playback"
	"github.com/hazyhaar/repro/recorder"
	"github.com/hazyhaar/repro/recording"
	"github.com/hazyhaar/repro/recstore"
	"github.com/hazyhaar/repro/report"
)

// maxUpload bounds an uploaded .repro file.
const maxUpload = 256 << 20

// RegisterHTTP registers the recording and session routes on r.
func (s *Server) RegisterHTTP(r chi.Router) {
	r.Route("/api/recordings", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Post("/", s.handleUpload)
		r.Get("/{id}", s.handleDownload)
		r.Delete("/{id}", s.serve(s.ep.remove, idFromPath))
		r.Get("/{id}/events", s.serve(s.ep.events, func(r *http.Request) (any, error) {
			from, err := intQuery(r, "from")
			if err != nil {
				return nil, err
			}
			to, err := intQuery(r, "to")
			if err != nil {
				return nil, err
			}
			return &eventsRequest{ID: chi.URLParam(r, "id"), From: from, To: to}, nil
		}))
		r.Get("/{id}/seek", s.serve(s.ep.seek, func(r *http.Request) (any, error) {
			at, err := offsetQuery(r)
			return &seekRequest{ID: chi.URLParam(r, "id"), At: at}, err
		}))
		r.Get("/{id}/report", s.handleReport(false))
	})

	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", s.serve(s.ep.sessions, func(*http.Request) (any, error) { return nil, nil }))
		r.Post("/", s.serve(s.ep.startSession, func(r *http.Request) (any, error) {
			var req startSessionRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				return nil, fmt.Errorf("%w: %v", errBadRequest, err)
			}
			return &req, nil
		}))
		r.Delete("/{id}", s.serve(s.ep.stopSession, idFromPath))
		r.Get("/{id}/report", s.handleReport(true))
		r.Get("/{id}/live", s.handleLive)
	})
}

// serve adapts an endpoint to HTTP with a JSON response.
func (s *Server) serve(ep kit.Endpoint, decode func(*http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decode(r)
		if err != nil {
			writeError(w, err)
			return
		}
		resp, err := ep(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := s.ep.list(r.Context(), &listRequest{Limit: limit})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDownload streams the .repro file.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ep.get(r.Context(), &idRequest{ID: chi.URLParam(r, "id")})
	if err != nil {
		writeError(w, err)
		return
	}
	rec := resp.(*recording.Recording)
	data, err := rec.MarshalBinary()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.ID()+".repro"))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

// handleUpload stores a .repro file sent as the request body.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	rec, err := recording.Decode(io.LimitReader(r.Body, maxUpload))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if err := s.store.Put(r.Context(), rec); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": rec.ID(), "events": rec.Len(), "duration": rec.Duration()})
}

// handleReport serves a report as JSON, or as Markdown with ?format=md.
// On a live session, ?since=30s bounds it to the last period.
func (s *Server) handleReport(live bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		at, err := offsetQuery(r)
		if err != nil {
			writeError(w, err)
			return
		}
		req := &reportRequest{ID: chi.URLParam(r, "id"), At: at, Since: r.URL.Query().Get("since"), Live: live}
		resp, err := s.ep.report(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		rep := resp.(*report.Report)
		if r.URL.Query().Get("format") == "md" {
			w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
			rep.WriteTo(w)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

func idFromPath(r *http.Request) (any, error) {
	return &idRequest{ID: chi.URLParam(r, "id")}, nil
}

func intQuery(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", errBadRequest, key, v)
	}
	return n, nil
}

// offsetQuery parses ?t= as milliseconds.
func offsetQuery(r *http.Request) (*uint32, error) {
	v := r.URL.Query().Get("t")
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: t=%q", errBadRequest, v)
	}
	at := uint32(n)
	return &at, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusOf(err), map[string]string{"error": err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, binview.ErrMalformed), errors.Is(err, binview.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, recstore.ErrNotFound), errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, recorder.ErrNotStarted), errors.Is(err, recorder.ErrAlreadyStarted):
		return http.StatusConflict
	case errors.Is(err, playback.ErrNoSnapshot):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled):
		return 499
	}
	return http.StatusInternalServerError
}
