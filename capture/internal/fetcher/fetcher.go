// Package fetcher is the browserless acquisition path: one GET whose HTML
// becomes the recording's only snapshot.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// maxBody caps a fetched page.
const maxBody = 10 << 20

// Result is a fetched page.
type Result struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Elapsed    time.Duration
	// Sufficient is false when the page is likely a client-rendered shell
	// that needs a browser.
	Sufficient bool
}

// Fetcher performs GETs.
type Fetcher struct {
	client *http.Client
	ua     string
	logger *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

func WithClient(c *http.Client) Option { return func(f *Fetcher) { f.client = c } }
func WithUserAgent(ua string) Option   { return func(f *Fetcher) { f.ua = ua } }
func WithLogger(l *slog.Logger) Option { return func(f *Fetcher) { f.logger = l } }

// New creates a Fetcher with a 30s timeout.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{Timeout: 30 * time.Second},
		ua:     "Mozilla/5.0 (compatible; repro/1.0)",
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch GETs pageURL. Non-2xx responses are returned, not treated as
// errors: a 404 page is still a page.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetcher: new request: %w", err)
	}
	req.Header.Set("User-Agent", f.ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetcher: do: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("fetcher: read body: %w", err)
	}
	res := &Result{
		URL:        pageURL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Elapsed:    time.Since(start),
		Sufficient: IsSufficient(body),
	}
	f.logger.Debug("fetcher: fetched",
		"url", pageURL, "status", resp.StatusCode, "size", len(body), "sufficient", res.Sufficient)
	return res, nil
}
