// Package api serves recordings over HTTP and MCP: stored recordings can be
// listed, downloaded, uploaded, seeked and turned into reports; live
// sessions can be started, tailed over a websocket and stopped into the
// store.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/repro/recorder"
	"github.com/hazyhaar/repro/recstore"
	"github.com/hazyhaar/repro/report"
)

// Config wires a Server.
type Config struct {
	Store   *recstore.Store
	Reports *report.Builder
	// Sources enables live sessions. Nil disables them.
	Sources Sources
	// Recorder is the template for live session controllers. Sources and
	// Sink are set per session.
	Recorder recorder.Options
	// PersistEvicted makes the store the sink of evicted events.
	PersistEvicted bool
	// MCPPath mounts the MCP streamable HTTP endpoint. Empty disables it.
	MCPPath string
	Logger  *slog.Logger
}

// Server is the HTTP and MCP front of the recording store.
type Server struct {
	store          *recstore.Store
	reports        *report.Builder
	sources        Sources
	recorder       recorder.Options
	persistEvicted bool
	mcpPath        string
	logger         *slog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	sessions *sessions
	ep       endpoints
}

// New creates a Server.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Reports == nil {
		cfg.Reports = report.New(report.WithLogger(cfg.Logger))
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		store:          cfg.Store,
		reports:        cfg.Reports,
		sources:        cfg.Sources,
		recorder:       cfg.Recorder,
		persistEvicted: cfg.PersistEvicted,
		mcpPath:        cfg.MCPPath,
		logger:         cfg.Logger,
		ctx:            ctx,
		cancel:         cancel,
	}
	s.sessions = &sessions{srv: s, m: make(map[string]*session)}
	s.ep = s.endpoints()
	return s
}

// StartSession records pageURL; used for pages configured at startup.
func (s *Server) StartSession(ctx context.Context, pageURL, acquire string) (Session, error) {
	resp, err := s.ep.startSession(ctx, &startSessionRequest{URL: pageURL, Acquire: acquire})
	if err != nil {
		return Session{}, err
	}
	return resp.(Session), nil
}

// Close stops every live session, storing their recordings.
func (s *Server) Close(ctx context.Context) error {
	err := s.sessions.stopAll(ctx)
	s.cancel()
	return err
}

// Handler returns the HTTP routes, with the MCP endpoint mounted when
// configured.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	for _, mw := range defaultStack(s.logger) {
		r.Use(mw)
	}
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.RegisterHTTP(r)

	if s.mcpPath != "" {
		srv := mcp.NewServer(&mcp.Implementation{Name: "repro", Version: "1.0.0"}, nil)
		s.RegisterMCP(srv)
		r.Handle(s.mcpPath, mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil))
	}
	return r
}
