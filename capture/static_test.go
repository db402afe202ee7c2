package capture

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/hazyhaar/repro/event"
	"github.com/hazyhaar/repro/idgen"
	"github.com/hazyhaar/repro/vdom"
)

type emitter struct {
	mu  sync.Mutex
	got []event.Payload
}

func (e *emitter) Push(p event.Payload) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.got = append(e.got, p)
	return nil
}

const page = `<!DOCTYPE html><html><head><title>Shop</title></head><body><main><article><h1>Catalogue</h1><p>` +
	`Every product we sell is listed on this page with its price, its availability and a short description written by our staff. ` +
	`Orders placed before noon ship the same day. Returns are accepted for thirty days after delivery.</p></article></main></body></html>`

func server(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStatic_Attach(t *testing.T) {
	srv := server(t, page)
	a, err := New(Config{Browser: "http", IDs: idgen.Sequence("n")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	src, err := a.Source(context.Background(), srv.URL, AcquireHTTP)
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	var e emitter
	if err := src.Attach(context.Background(), &e); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	defer src.Detach()

	if len(e.got) != 3 {
		t.Fatalf("pushed %d payloads, want 3", len(e.got))
	}
	req := e.got[0].(event.NetworkEvent).Message.(event.Request)
	resp := e.got[1].(event.NetworkEvent).Message.(event.Response)
	if req.CorrelationID != resp.CorrelationID || req.Method != http.MethodGet {
		t.Errorf("request/response = %+v / %+v", req, resp)
	}
	if resp.Status != 200 || resp.Headers["Content-Type"] != "text/html" {
		t.Errorf("response = %+v", resp)
	}
	snap := e.got[2].(event.Snapshot)
	if snap.DOM == nil {
		t.Fatal("snapshot has no DOM")
	}
	out, err := vdom.RenderString(*snap.DOM)
	if err != nil {
		t.Fatalf("RenderString: %v", err)
	}
	if !strings.Contains(out, "<h1>Catalogue</h1>") {
		t.Errorf("rendered = %s", out)
	}
}

func TestAgent_BrowserlessAgentUsesHTTP(t *testing.T) {
	srv := server(t, page)
	a, err := New(Config{Browser: "http"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	src, err := a.Source(context.Background(), srv.URL, AcquireAuto)
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	s, ok := src.(*Static)
	if !ok {
		t.Fatalf("source is %T, want *Static", src)
	}
	if s.prefetched != nil {
		t.Error("browserless agent should not prefetch")
	}
}

func TestParseAcquire(t *testing.T) {
	for in, want := range map[string]Acquire{"": AcquireAuto, "auto": AcquireAuto, "http": AcquireHTTP, "browser": AcquireBrowser} {
		got, err := ParseAcquire(in)
		if err != nil || got != want {
			t.Errorf("ParseAcquire(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseAcquire("ftp"); err == nil {
		t.Error("ParseAcquire accepted ftp")
	}
}
