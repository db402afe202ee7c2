package report

import (
	"strings"
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/hazyhaar/repro/event"
	"github.com/hazyhaar/repro/eventlog"
	"github.com/hazyhaar/repro/patch"
	"github.com/hazyhaar/repro/recording"
	"github.com/hazyhaar/repro/vdom"
)

func shop() vdom.VTree {
	return vdom.NewTree(
		&vdom.Document{ID: "doc", Children: []vdom.SyntheticID{"html"}},
		&vdom.Element{ID: "html", ParentID: "doc", TagName: "html", Children: []vdom.SyntheticID{"head", "body"}},
		&vdom.Element{ID: "head", ParentID: "html", TagName: "head", Children: []vdom.SyntheticID{"title"}},
		&vdom.Element{ID: "title", ParentID: "head", TagName: "title", Children: []vdom.SyntheticID{"title.t"}},
		&vdom.Text{ID: "title.t", ParentID: "title", Value: " Shop "},
		&vdom.Element{ID: "body", ParentID: "html", TagName: "body", Children: []vdom.SyntheticID{"h1", "script"}},
		&vdom.Element{ID: "h1", ParentID: "body", TagName: "h1", Children: []vdom.SyntheticID{"h1.t"}},
		&vdom.Text{ID: "h1.t", ParentID: "h1", Value: "Catalogue"},
		&vdom.Element{ID: "script", ParentID: "body", TagName: "script", Children: []vdom.SyntheticID{"script.t"}},
		&vdom.Text{ID: "script.t", ParentID: "script", Value: "alert(1)"},
	)
}

func session(t *testing.T) *eventlog.List[event.SourceEvent] {
	t.Helper()
	tree := shop()
	l := eventlog.New(event.Codec)
	err := l.Append(
		event.New(0, event.Snapshot{DOM: &tree}),
		event.New(10, event.NetworkEvent{Message: event.Request{CorrelationID: "r1", Method: "GET", URL: "https://shop.test/api/cart"}}),
		event.New(20, event.ConsoleEvent{Message: event.ConsoleMessage{Level: event.ConsoleError, Parts: []string{"cart", "failed"}}}),
		event.New(25, event.ConsoleEvent{Message: event.ConsoleMessage{Level: event.ConsoleLog, Parts: []string{"noise"}}}),
		event.New(30, event.NetworkEvent{Message: event.Response{CorrelationID: "r1", Status: 500}}),
		event.New(40, event.NetworkEvent{Message: event.Request{CorrelationID: "r2", Method: "POST", URL: "https://shop.test/api/retry"}}),
		event.New(50, event.InteractionEvent{Interaction: event.PageTransition{From: "https://shop.test/", To: "https://shop.test/cart"}}),
		event.New(60, event.InteractionEvent{Interaction: event.PointerDown{At: event.Point{X: 5, Y: 6}}}),
		event.New(200, event.DOMPatch{Patch: patch.Text{TargetID: "h1.t", Value: "Basket", OldValue: "Catalogue"}}),
	)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestBuild_StateAtOffset(t *testing.T) {
	rep, err := New().Build(session(t), 100)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	assert.Equal(t, rep.At, uint32(100))
	assert.Equal(t, rep.Duration, uint32(200))
	assert.Equal(t, rep.Title, "Shop")
	assert.Equal(t, rep.URL, "https://shop.test/cart")
	assert.Equal(t, rep.Interaction.PointerState, event.PointerStateDown)
	assert.Equal(t, len(rep.Console), 1)
	assert.Equal(t, rep.Network, []Exchange{
		{Method: "GET", URL: "https://shop.test/api/cart", Status: 500},
		{Method: "POST", URL: "https://shop.test/api/retry", Pending: true},
	})

	if strings.Contains(rep.HTML, "alert") || strings.Contains(rep.HTML, "<script") {
		t.Errorf("script survived sanitising: %s", rep.HTML)
	}
	if !strings.Contains(rep.Markdown, "# Catalogue") {
		t.Errorf("markdown = %q", rep.Markdown)
	}
}

func TestBuild_LaterOffsetSeesPatch(t *testing.T) {
	rep, err := New().Build(session(t), 10_000)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if rep.At != 200 {
		t.Errorf("At = %d, want clamp to 200", rep.At)
	}
	if !strings.Contains(rep.Markdown, "# Basket") {
		t.Errorf("markdown = %q", rep.Markdown)
	}
}

func TestBuild_Options(t *testing.T) {
	rep, err := New(WithMinLevel(event.ConsoleDebug), WithConsoleLimit(1)).Build(session(t), 100)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(rep.Console) != 1 || rep.Console[0].Parts[0] != "noise" {
		t.Errorf("console = %+v, want only the last message", rep.Console)
	}
}

func TestFromRecording_Document(t *testing.T) {
	r, err := recording.New("0192a9e4-6c1f-7c2e-9f4b-2a7d3c5e8f10", session(t))
	if err != nil {
		t.Fatalf("recording.New: %v", err)
	}
	rep, err := New().FromRecording(r, 100)
	if err != nil {
		t.Fatalf("FromRecording: %v", err)
	}
	doc := rep.Document()
	for _, want := range []string{
		"# Shop",
		"Recording: `0192a9e4-6c1f-7c2e-9f4b-2a7d3c5e8f10`",
		"- At: 0.100s of 0.200s",
		"[error] cart failed",
		"| GET | https://shop.test/api/cart | HTTP 500 |",
		"| POST | https://shop.test/api/retry | pending |",
		"## Page",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("document missing %q:\n%s", want, doc)
		}
	}
}

func TestBuild_RequiresSnapshot(t *testing.T) {
	if _, err := New().Build(eventlog.New(event.Codec), 0); err == nil {
		t.Fatal("Build on an empty log succeeded")
	}
}
