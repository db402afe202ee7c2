// Package capture turns live pages into recorder sources. A page is either
// fetched once over HTTP and recorded as a single snapshot, or opened in
// Chrome and observed: DOM changes become patches, and network, console and
// user input become their own events.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/repro/capture/internal/browser"
	"github.com/hazyhaar/repro/capture/internal/fetcher"
	"github.com/hazyhaar/repro/idgen"
	"github.com/hazyhaar/repro/recorder"
)

// Acquire selects how a page is recorded.
type Acquire int

const (
	// AcquireAuto fetches the page first and opens a browser only when the
	// HTML looks client-rendered.
	AcquireAuto Acquire = iota
	AcquireHTTP
	AcquireBrowser
)

// ParseAcquire accepts "auto", "http" and "browser". Empty means auto.
func ParseAcquire(s string) (Acquire, error) {
	switch s {
	case "", "auto":
		return AcquireAuto, nil
	case "http":
		return AcquireHTTP, nil
	case "browser":
		return AcquireBrowser, nil
	}
	return 0, fmt.Errorf("capture: unknown acquisition mode %q", s)
}

// Config configures an Agent.
type Config struct {
	// Browser is "headless" (default), "headful" or "http" to never start
	// Chrome.
	Browser          string
	RemoteURL        string
	MemoryLimit      int64
	RecycleInterval  time.Duration
	ResourceBlocking []string

	// DebounceWindow is how long the DOM must be quiet before it is
	// re-read. Default 250ms.
	DebounceWindow time.Duration
	// DebounceMax forces a re-read after this many changes. Default 1000.
	DebounceMax int

	UserAgent string
	// IDs generates synthetic node ids. Default idgen.Short(8).
	IDs    idgen.Generator
	Logger *slog.Logger
}

// Agent creates sources for pages and owns the browser they share.
type Agent struct {
	cfg   Config
	mgr   *browser.Manager
	fetch *fetcher.Fetcher
}

// New creates an Agent. Call Start before recording browser pages.
func New(cfg Config) (*Agent, error) {
	if cfg.IDs == nil {
		cfg.IDs = idgen.Short(8)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	a := &Agent{cfg: cfg}

	fopts := []fetcher.Option{fetcher.WithLogger(cfg.Logger)}
	if cfg.UserAgent != "" {
		fopts = append(fopts, fetcher.WithUserAgent(cfg.UserAgent))
	}
	a.fetch = fetcher.New(fopts...)

	mode, err := browser.ParseMode(cfg.Browser)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	if mode != browser.ModeHTTP {
		a.mgr = browser.NewManager(browser.Config{
			RemoteURL:        cfg.RemoteURL,
			MemoryLimit:      cfg.MemoryLimit,
			RecycleInterval:  cfg.RecycleInterval,
			ResourceBlocking: cfg.ResourceBlocking,
			Mode:             mode,
			Logger:           cfg.Logger,
		})
	}
	return a, nil
}

// Start launches the browser, if any. It runs until ctx is done or Close.
func (a *Agent) Start(ctx context.Context) error {
	if a.mgr == nil {
		return nil
	}
	if err := a.mgr.Start(ctx); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	return nil
}

// Close shuts the browser down.
func (a *Agent) Close() error {
	if a.mgr == nil {
		return nil
	}
	return a.mgr.Close()
}

// Source returns a recorder source for pageURL.
func (a *Agent) Source(ctx context.Context, pageURL string, acq Acquire) (recorder.Source, error) {
	if acq != AcquireHTTP && a.mgr == nil {
		acq = AcquireHTTP
	}
	switch acq {
	case AcquireHTTP:
		return &Static{url: pageURL, fetch: a.fetch, ids: a.cfg.IDs}, nil
	case AcquireAuto:
		res, err := a.fetch.Fetch(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("capture: %w", err)
		}
		if res.Sufficient {
			return &Static{url: pageURL, fetch: a.fetch, ids: a.cfg.IDs, prefetched: res}, nil
		}
		a.cfg.Logger.Info("capture: page needs a browser", "url", pageURL)
	}
	return &Page{
		url:    pageURL,
		mgr:    a.mgr,
		ids:    a.cfg.IDs,
		window: a.cfg.DebounceWindow,
		max:    a.cfg.DebounceMax,
		logger: a.cfg.Logger,
	}, nil
}
