package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/repro/event"
	"github.com/hazyhaar/repro/idgen"
	"github.com/hazyhaar/repro/patch"
	"github.com/hazyhaar/repro/playback"
	"github.com/hazyhaar/repro/vdom"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type manual struct {
	mu  sync.Mutex
	fns []func()
}

func (m *manual) schedule(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fns = append(m.fns, fn)
}

func (m *manual) run() {
	m.mu.Lock()
	fns := m.fns
	m.fns = nil
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

type memSink struct {
	mu      sync.Mutex
	entries map[string][][]byte
}

func (s *memSink) Persist(_ context.Context, id string, entries [][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		s.entries = make(map[string][][]byte)
	}
	s.entries[id] = append(s.entries[id], entries...)
	return nil
}

type fakeSource struct {
	name     string
	fail     error
	attached bool
	detached bool
	emitter  Emitter
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) Attach(_ context.Context, e Emitter) error {
	if s.fail != nil {
		return s.fail
	}
	s.attached, s.emitter = true, e
	return nil
}

func (s *fakeSource) Detach() error {
	s.detached = true
	return nil
}

func page() vdom.VTree {
	return vdom.NewTree(
		&vdom.Document{ID: "doc", Children: []vdom.SyntheticID{"body"}},
		&vdom.Element{ID: "body", ParentID: "doc", TagName: "body", Children: []vdom.SyntheticID{"p"}},
		&vdom.Element{ID: "p", ParentID: "body", TagName: "p", Children: []vdom.SyntheticID{"t"}},
		&vdom.Text{ID: "t", ParentID: "p", Value: "v"},
	)
}

func newController(t *testing.T, opts Options) (*Controller, *clock, *manual) {
	t.Helper()
	clk := &clock{now: time.Unix(1700000000, 0)}
	m := &manual{}
	opts.Clock = clk.Now
	opts.Scheduler = m.schedule
	opts.IDGen = idgen.Sequence("rec-")
	return New(opts), clk, m
}

func events(t *testing.T, c *Controller) []event.SourceEvent {
	t.Helper()
	l, err := c.Slice(0, c.Len())
	if err != nil {
		t.Fatalf("slice: %v", err)
	}
	evs, err := l.Values()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return evs
}

func TestStartStop_Lifecycle(t *testing.T) {
	src := &fakeSource{name: "dom"}
	c, _, _ := newController(t, Options{Sources: []Source{src}})
	ctx := context.Background()

	if err := c.Push(event.CloseRecording{}); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("push while idle: %v", err)
	}
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if !c.IsStarted() || !src.attached {
		t.Fatal("not started or source not attached")
	}
	if c.ID() != "rec-1" {
		t.Fatalf("id = %q", c.ID())
	}
	if err := c.Start(ctx); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second start: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := c.Stop(); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("second stop: %v", err)
	}
	if !src.detached || c.IsStarted() {
		t.Fatal("source still attached or controller still started")
	}

	evs := events(t, c)
	if len(evs) != 2 || evs[0].Type() != event.TypeSnapshot || evs[1].Type() != event.TypeCloseRecording {
		t.Fatalf("events = %v", evs)
	}
}

func TestStart_AttachFailureDetaches(t *testing.T) {
	ok := &fakeSource{name: "dom"}
	bad := &fakeSource{name: "net", fail: fmt.Errorf("no target")}
	c, _, _ := newController(t, Options{Sources: []Source{ok, bad}})

	if err := c.Start(context.Background()); err == nil {
		t.Fatal("start succeeded with a failing source")
	}
	if !ok.detached {
		t.Fatal("attached source not detached")
	}
	if c.IsStarted() {
		t.Fatal("controller started")
	}
}

func TestPush_TimestampsNeverGoBack(t *testing.T) {
	c, clk, _ := newController(t, Options{})
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	clk.Advance(120 * time.Millisecond)
	if err := c.Push(event.InteractionEvent{Interaction: event.KeyDown{Key: "a"}}); err != nil {
		t.Fatal(err)
	}
	clk.Advance(-50 * time.Millisecond)
	if err := c.Push(event.InteractionEvent{Interaction: event.KeyUp{Key: "a"}}); err != nil {
		t.Fatal(err)
	}

	evs := events(t, c)
	if evs[1].Time != 120 || evs[2].Time != 120 {
		t.Fatalf("times = %d, %d", evs[1].Time, evs[2].Time)
	}
}

func TestPush_RejectsPatchThatCannotApply(t *testing.T) {
	c, _, _ := newController(t, Options{})
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	tree := page()
	if err := c.Push(event.Snapshot{DOM: &tree}); err != nil {
		t.Fatal(err)
	}
	n := c.Len()

	sub := vdom.NewTree(&vdom.Element{ID: "x", TagName: "b"})
	err := c.Push(event.DOMPatch{Patch: patch.AddNodes{ParentID: "t", Nodes: []vdom.VTree{sub}}})
	if err == nil {
		t.Fatal("patch under a text node accepted")
	}
	if c.Len() != n {
		t.Fatalf("rejected patch was buffered: len %d -> %d", n, c.Len())
	}
}

func TestSnapshot_ReflectsLiveState(t *testing.T) {
	c, _, _ := newController(t, Options{})
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	tree := page()
	pushes := []event.Payload{
		event.Snapshot{DOM: &tree},
		event.DOMPatch{Patch: patch.SetAttribute("p", "class", vdom.Str("a"), nil, false)},
		event.InteractionEvent{Interaction: event.PointerDown{At: event.Point{X: 4, Y: 5}}},
		event.NetworkEvent{Message: event.Request{CorrelationID: "r1", Method: "GET", URL: "/x"}},
		event.NetworkEvent{Message: event.Request{CorrelationID: "r2", Method: "GET", URL: "/y"}},
		event.NetworkEvent{Message: event.Response{CorrelationID: "r1", Status: 200}},
	}
	for _, p := range pushes {
		if err := c.Push(p); err != nil {
			t.Fatal(err)
		}
	}
	n := c.Len()

	snap := c.Snapshot().Data.(event.Snapshot)
	if c.Len() != n {
		t.Fatal("Snapshot recorded an event")
	}
	if v := snap.DOM.Get("p").(*vdom.Element).Attributes["class"]; v == nil || *v != "a" {
		t.Fatalf("class = %v", v)
	}
	if snap.Interaction.PointerState != event.PointerStateDown || snap.Interaction.Pointer != (event.Point{X: 4, Y: 5}) {
		t.Fatalf("interaction = %+v", snap.Interaction)
	}
	if len(snap.Network.InFlight) != 1 || snap.Network.InFlight[0].CorrelationID != "r2" {
		t.Fatalf("in flight = %+v", snap.Network.InFlight)
	}
}

func TestSlice_PrependsSnapshot(t *testing.T) {
	c, _, _ := newController(t, Options{})
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	tree := page()
	for _, p := range []event.Payload{
		event.Snapshot{DOM: &tree},
		event.DOMPatch{Patch: patch.SetAttribute("p", "class", vdom.Str("a"), nil, false)},
		event.DOMPatch{Patch: patch.Text{TargetID: "t", Value: "w", OldValue: "v"}},
	} {
		if err := c.Push(p); err != nil {
			t.Fatal(err)
		}
	}

	l, err := c.Slice(3, c.Len())
	if err != nil {
		t.Fatal(err)
	}
	evs, err := l.Values()
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 2 {
		t.Fatalf("len = %d, want 2", len(evs))
	}
	snap, ok := evs[0].Data.(event.Snapshot)
	if !ok {
		t.Fatalf("first event is %s", evs[0].Type())
	}
	if v := snap.DOM.Get("p").(*vdom.Element).Attributes["class"]; v == nil || *v != "a" {
		t.Fatal("prepended snapshot misses the earlier patch")
	}
	if snap.DOM.Get("t").(*vdom.Text).Value != "v" {
		t.Fatal("prepended snapshot includes the sliced patch")
	}

	// A slice starting on a snapshot is returned as is.
	l, err = c.Slice(1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if l.Len() != 1 {
		t.Fatalf("len = %d, want 1", l.Len())
	}
}

func TestEviction_FoldsIntoBaseAndPersists(t *testing.T) {
	textPatch := func(i int) event.Payload {
		return event.DOMPatch{Patch: patch.Text{
			TargetID: "t",
			Value:    fmt.Sprintf("v%d", i),
			OldValue: fmt.Sprintf("v%d", i-1),
		}}
	}
	probe, err := event.Codec.Encode(event.New(0, textPatch(1)))
	if err != nil {
		t.Fatal(err)
	}
	sink := &memSink{}
	c, _, m := newController(t, Options{MaxBytes: 3 * len(probe), Sink: sink})
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	tree := page()
	tree.Nodes["t"].(*vdom.Text).Value = "v0"
	if err := c.Push(event.Snapshot{DOM: &tree}); err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 6; i++ {
		if err := c.Push(textPatch(i)); err != nil {
			t.Fatal(err)
		}
	}
	m.run()

	if c.Len() != 3 {
		t.Fatalf("buffered %d events, want 3", c.Len())
	}
	evs := events(t, c)
	if len(evs) != 4 {
		t.Fatalf("slice len = %d, want 4", len(evs))
	}
	snap := evs[0].Data.(event.Snapshot)
	if got := snap.DOM.Get("t").(*vdom.Text).Value; got != "v3" {
		t.Fatalf("state before first kept patch = %q, want v3", got)
	}
	if n := len(sink.entries["rec-1"]); n != 5 {
		t.Fatalf("persisted %d entries, want 5", n)
	}
}

func TestSliceSince(t *testing.T) {
	c, clk, _ := newController(t, Options{})
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	for range 4 {
		clk.Advance(time.Second)
		if err := c.Push(event.InteractionEvent{Interaction: event.KeyDown{Key: "k"}}); err != nil {
			t.Fatal(err)
		}
	}
	l, err := c.SliceSince(2 * time.Second)
	if err != nil {
		t.Fatal(err)
	}
	evs, err := l.Values()
	if err != nil {
		t.Fatal(err)
	}
	// Events at 2s, 3s and 4s, behind a snapshot stamped 2s.
	if len(evs) != 4 || evs[0].Type() != event.TypeSnapshot || evs[0].Time != 2000 {
		t.Fatalf("events = %v", evs)
	}
}

func TestRecording(t *testing.T) {
	c, clk, _ := newController(t, Options{})
	if _, err := c.Recording(); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("recording before start: %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	clk.Advance(1500 * time.Millisecond)
	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}
	rec, err := c.Recording()
	if err != nil {
		t.Fatal(err)
	}
	if rec.ID() != "rec-1" || rec.Duration() != 1500 || rec.Events().Len() != 2 {
		t.Fatalf("recording = %s %d %d", rec.ID(), rec.Duration(), rec.Events().Len())
	}
}

func TestPush_DOMOnlySnapshotKeepsLiveState(t *testing.T) {
	c, clk, _ := newController(t, Options{})
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	clk.Advance(10 * time.Millisecond)
	size := event.Point{X: 800, Y: 600}
	if err := c.Push(event.InteractionEvent{Interaction: event.ViewportResize{Size: event.Sample[event.Point]{From: size, To: size}}}); err != nil {
		t.Fatal(err)
	}
	req := event.Request{CorrelationID: "r1", Method: "GET", URL: "https://shop.test/cart"}
	if err := c.Push(event.NetworkEvent{Message: req}); err != nil {
		t.Fatal(err)
	}
	clk.Advance(10 * time.Millisecond)
	tree := page()
	if err := c.Push(event.Snapshot{DOM: &tree}); err != nil {
		t.Fatal(err)
	}

	evs := events(t, c)
	snap, ok := evs[len(evs)-1].Data.(event.Snapshot)
	if !ok || snap.Interaction == nil || snap.Network == nil {
		t.Fatalf("recorded snapshot not completed: %+v", evs[len(evs)-1])
	}
	if len(snap.Network.InFlight) != 1 || snap.Network.InFlight[0].CorrelationID != "r1" {
		t.Fatalf("in flight = %+v", snap.Network.InFlight)
	}

	rec, err := c.Recording()
	if err != nil {
		t.Fatal(err)
	}
	eng, err := playback.FromRecording(rec)
	if err != nil {
		t.Fatal(err)
	}
	// Seek straight to the snapshot so playback starts from it.
	if err := eng.SeekToEvent(len(evs) - 1); err != nil {
		t.Fatal(err)
	}
	if got := eng.Interaction().Viewport; got != size {
		t.Fatalf("viewport after replay = %+v, want %+v", got, size)
	}
}
