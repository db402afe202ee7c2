package capture

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/hazyhaar/repro/capture/internal/fetcher"
	"github.com/hazyhaar/repro/event"
	"github.com/hazyhaar/repro/idgen"
	"github.com/hazyhaar/repro/recorder"
	"github.com/hazyhaar/repro/vdom"
)

// Static records a page from one HTTP GET: the request, its response and
// a snapshot of the parsed HTML.
type Static struct {
	url        string
	fetch      *fetcher.Fetcher
	ids        idgen.Generator
	prefetched *fetcher.Result
}

func (s *Static) Name() string { return "http " + s.url }

func (s *Static) Attach(ctx context.Context, e recorder.Emitter) error {
	res := s.prefetched
	s.prefetched = nil
	if res == nil {
		var err error
		if res, err = s.fetch.Fetch(ctx, s.url); err != nil {
			return fmt.Errorf("capture: %w", err)
		}
	}
	tree, err := vdom.FromHTML(bytes.NewReader(res.Body), s.ids)
	if err != nil {
		return fmt.Errorf("capture: parse %s: %w", s.url, err)
	}

	id := s.ids()
	payloads := []event.Payload{
		event.NetworkEvent{Message: event.Request{CorrelationID: id, Method: http.MethodGet, URL: res.URL}},
		event.NetworkEvent{Message: event.Response{
			CorrelationID: id,
			Status:        uint16(res.StatusCode),
			Headers:       flatten(res.Header),
			BodySize:      uint64(len(res.Body)),
		}},
		event.Snapshot{DOM: &tree},
	}
	for _, p := range payloads {
		if err := e.Push(p); err != nil {
			return fmt.Errorf("capture: %s: %w", s.url, err)
		}
	}
	return nil
}

func (s *Static) Detach() error { return nil }

func flatten(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k := range h {
		out[http.CanonicalHeaderKey(k)] = h.Get(k)
	}
	return out
}
