// Package browser manages the Chrome instance pages are recorded from:
// launch or connect through Rod, open stealth tabs, and recycle the
// process when it outlives its interval or its memory budget.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// Mode is how a page is acquired.
type Mode int

const (
	ModeHTTP     Mode = iota // plain GET, no browser
	ModeHeadless             // headless Chrome with stealth
	ModeHeadful              // visible Chrome on $DISPLAY
)

func (m Mode) String() string {
	switch m {
	case ModeHTTP:
		return "http"
	case ModeHeadless:
		return "headless"
	case ModeHeadful:
		return "headful"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode accepts "http", "headless" and "headful". Empty means headless.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "http":
		return ModeHTTP, nil
	case "", "headless":
		return ModeHeadless, nil
	case "headful":
		return ModeHeadful, nil
	}
	return 0, fmt.Errorf("browser: unknown mode %q", s)
}

// Config configures a Manager.
type Config struct {
	// RemoteURL is the DevTools websocket of an external Chrome. Empty
	// launches a local one.
	RemoteURL string
	// MemoryLimit in bytes of JS heap before a recycle. Default 1 GiB.
	MemoryLimit int64
	// RecycleInterval is the longest a Chrome process is kept. Default 4h.
	RecycleInterval time.Duration
	// ResourceBlocking lists resource kinds never loaded (images, fonts,
	// media, stylesheets).
	ResourceBlocking []string
	Mode             Mode
	Logger           *slog.Logger
}

func (c *Config) defaults() {
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = 1 << 30
	}
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = 4 * time.Hour
	}
	if c.Mode == ModeHTTP {
		c.Mode = ModeHeadless
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns the Chrome process. Recycling is skipped while tabs are
// open so a recording never loses its page.
type Manager struct {
	cfg     Config
	mu      sync.RWMutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	startAt time.Time
	tabs    int
	closed  bool
}

// NewManager creates a Manager. Chrome starts on the first Start.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Start launches or connects to Chrome and starts the recycle monitor,
// which stops with ctx.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}
	if m.browser != nil {
		return nil
	}
	b, err := m.launch()
	if err != nil {
		return err
	}
	m.browser, m.startAt = b, time.Now()
	go m.monitor(ctx)
	return nil
}

// Browser returns the live browser, or nil before Start.
func (m *Manager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser
}

// Close shuts Chrome down.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cleanup()
	return nil
}

func (m *Manager) launch() (*rod.Browser, error) {
	log := m.cfg.Logger
	wsURL := m.cfg.RemoteURL
	if wsURL != "" {
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().
			Headless(m.cfg.Mode != ModeHeadful).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL, m.lnch = u, l
		log.Info("browser: launched local chrome", "url", wsURL, "mode", m.cfg.Mode)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("browser: ignore cert errors failed", "error", err)
	}
	return b, nil
}

func (m *Manager) cleanup() {
	if m.browser != nil {
		m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
}

func (m *Manager) acquire() (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.browser == nil {
		return nil, fmt.Errorf("browser: not started")
	}
	m.tabs++
	return m.browser, nil
}

func (m *Manager) release() {
	m.mu.Lock()
	m.tabs--
	m.mu.Unlock()
}

func (m *Manager) monitor(ctx context.Context) {
	log := m.cfg.Logger
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.mu.RLock()
		b, startAt, busy, closed := m.browser, m.startAt, m.tabs > 0, m.closed
		m.mu.RUnlock()
		if closed || b == nil {
			return
		}
		if busy {
			continue
		}

		reason := ""
		if time.Since(startAt) > m.cfg.RecycleInterval {
			reason = "interval"
		} else if used, err := heapUsage(b); err != nil {
			log.Debug("browser: heap check failed", "error", err)
		} else if used > m.cfg.MemoryLimit {
			reason = "memory"
		}
		if reason == "" {
			continue
		}
		if err := m.recycle(reason); err != nil {
			log.Error("browser: recycle failed", "error", err)
		}
	}
}

func (m *Manager) recycle(reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.tabs > 0 {
		return nil
	}
	m.cfg.Logger.Info("browser: recycling", "reason", reason, "uptime", time.Since(m.startAt))
	m.cleanup()
	b, err := m.launch()
	if err != nil {
		return fmt.Errorf("browser: relaunch: %w", err)
	}
	m.browser, m.startAt = b, time.Now()
	return nil
}

// heapUsage reads the JS heap of the first page as a proxy for the
// process.
func heapUsage(b *rod.Browser) (int64, error) {
	pages, err := b.Pages()
	if err != nil || len(pages) == 0 {
		return 0, fmt.Errorf("browser: no pages for heap check")
	}
	res, err := pages[0].Eval(`() => performance.memory ? performance.memory.usedJSHeapSize : 0`)
	if err != nil {
		return 0, err
	}
	return int64(res.Value.Int()), nil
}
