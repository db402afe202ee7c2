package playback

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/hazyhaar/repro/binview"
	"github.com/hazyhaar/repro/event"
	"github.com/hazyhaar/repro/eventlog"
	"github.com/hazyhaar/repro/patch"
	"github.com/hazyhaar/repro/vdom"
)

func doc(children ...vdom.VNode) vdom.VTree {
	ids := make([]vdom.SyntheticID, 0, len(children))
	for _, c := range children {
		ids = append(ids, c.NodeID())
	}
	return vdom.NewTree(&vdom.Document{ID: "doc", Children: ids}, children...)
}

func list(t *testing.T, events ...event.SourceEvent) *eventlog.List[event.SourceEvent] {
	t.Helper()
	l := eventlog.New(event.Codec)
	if err := l.Append(events...); err != nil {
		t.Fatal(err)
	}
	return l
}

func engine(t *testing.T, l *eventlog.List[event.SourceEvent]) *Engine {
	t.Helper()
	e, err := New(l)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func seek(t *testing.T, e *Engine, at uint32) {
	t.Helper()
	if err := e.SeekToTime(at); err != nil {
		t.Fatalf("seek %d: %v", at, err)
	}
}

func class(t *testing.T, e *Engine, id vdom.SyntheticID) *string {
	t.Helper()
	tree := e.Tree()
	if tree == nil {
		t.Fatal("no tree")
	}
	return tree.Get(id).(*vdom.Element).Attributes["class"]
}

func TestRoundTrip_SeekForwardAndBack(t *testing.T) {
	tree := doc(&vdom.Element{ID: "n", ParentID: "doc", TagName: "div"})
	src := list(t,
		event.New(0, event.Snapshot{DOM: &tree}),
		event.New(100, event.DOMPatch{Patch: patch.SetAttribute("n", "class", vdom.Str("a"), nil, false)}),
	)
	var buf bytes.Buffer
	if err := eventlog.Write(&buf, src); err != nil {
		t.Fatal(err)
	}
	loaded, err := eventlog.Read(&buf, event.Codec)
	if err != nil {
		t.Fatal(err)
	}
	e := engine(t, loaded)

	seek(t, e, 150)
	if v := class(t, e, "n"); v == nil || *v != "a" {
		t.Fatalf("class at 150 = %v, want a", v)
	}
	seek(t, e, 50)
	if v := class(t, e, "n"); v != nil {
		t.Fatalf("class at 50 = %q, want none", *v)
	}
}

func TestAddThenRemove_LeavesNoTrace(t *testing.T) {
	tree := doc(&vdom.Element{ID: "a", ParentID: "doc", TagName: "div"})
	sub := vdom.NewTree(
		&vdom.Element{ID: "b", TagName: "p", Children: []vdom.SyntheticID{"c"}},
		&vdom.Text{ID: "c", ParentID: "b", Value: "hi"},
	)
	added, _ := tree.InsertSubtrees("a", []vdom.VTree{sub}, 0)
	removed, _ := added.Subtree("b")
	e := engine(t, list(t,
		event.New(0, event.Snapshot{DOM: &tree}),
		event.New(100, event.DOMPatch{Patch: patch.AddNodes{ParentID: "a", Nodes: []vdom.VTree{sub}}}),
		event.New(200, event.DOMPatch{Patch: patch.RemoveNodes{ParentID: "a", Nodes: []vdom.VTree{removed}}}),
	))

	check := func(at uint32, children int) {
		t.Helper()
		seek(t, e, at)
		got := e.Tree()
		if n := len(got.Children("a")); n != children {
			t.Fatalf("at %d: #a has %d children, want %d", at, n, children)
		}
		_, hasB := got.Nodes["b"]
		_, hasC := got.Nodes["c"]
		if hasB != (children == 1) || hasC != (children == 1) {
			t.Fatalf("at %d: node map has b=%v c=%v", at, hasB, hasC)
		}
	}
	check(250, 0)
	check(150, 1)
	check(50, 0)
	check(1000, 0)
}

func TestNew_RequiresLeadingSnapshot(t *testing.T) {
	if _, err := New(eventlog.New(event.Codec)); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("empty log: %v", err)
	}
	l := list(t, event.New(0, event.DOMPatch{Patch: patch.Text{TargetID: "x", Value: "v"}}))
	if _, err := New(l); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("leading patch: %v", err)
	}
}

func TestSeek_SameTimestampKeepsLogOrder(t *testing.T) {
	tree := doc(&vdom.Text{ID: "t", ParentID: "doc", Value: "a"})
	e := engine(t, list(t,
		event.New(0, event.Snapshot{DOM: &tree}),
		event.New(100, event.DOMPatch{Patch: patch.Text{TargetID: "t", Value: "x", OldValue: "a"}}),
		event.New(100, event.DOMPatch{Patch: patch.Text{TargetID: "t", Value: "y", OldValue: "x"}}),
	))
	text := func() string { return e.Tree().Get("t").(*vdom.Text).Value }

	seek(t, e, 100)
	assert.Equal(t, text(), "y")
	if err := e.SeekToEvent(1); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, text(), "x")
	idx, at := e.Cursor()
	assert.Equal(t, idx, 1)
	assert.Equal(t, at, uint32(100))
}

func TestSeek_AcrossSnapshots(t *testing.T) {
	first := doc(&vdom.Text{ID: "t", ParentID: "doc", Value: "one"})
	second := doc(&vdom.Text{ID: "u", ParentID: "doc", Value: "two"})
	e := engine(t, list(t,
		event.New(0, event.Snapshot{DOM: &first}),
		event.New(10, event.DOMPatch{Patch: patch.Text{TargetID: "t", Value: "one!", OldValue: "one"}}),
		event.New(20, event.Snapshot{DOM: &second}),
		event.New(30, event.DOMPatch{Patch: patch.Text{TargetID: "u", Value: "two!", OldValue: "two"}}),
		event.New(40, event.CloseRecording{}),
	))
	assert.Equal(t, e.Duration(), uint32(40))

	seek(t, e, 35)
	got := e.Tree()
	if _, ok := got.Nodes["t"]; ok {
		t.Fatal("first snapshot's node survived the second snapshot")
	}
	assert.Equal(t, got.Get("u").(*vdom.Text).Value, "two!")

	seek(t, e, 15)
	got = e.Tree()
	if _, ok := got.Nodes["u"]; ok {
		t.Fatal("second snapshot's node visible before it")
	}
	assert.Equal(t, got.Get("t").(*vdom.Text).Value, "one!")

	if err := e.SeekToEvent(5); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("seek past end: %v", err)
	}
}

func TestSeek_EmptySnapshotHasNoTree(t *testing.T) {
	e := engine(t, list(t, event.New(0, event.Snapshot{})))
	if e.Tree() != nil {
		t.Fatal("tree from an empty snapshot")
	}
}

func TestSeek_CorruptEntry(t *testing.T) {
	tree := doc()
	l := list(t, event.New(0, event.Snapshot{DOM: &tree}))
	l.AppendRaw([]byte{1, 0, 2})
	if err := l.Append(event.New(20, event.CloseRecording{})); err != nil {
		t.Fatal(err)
	}
	e := engine(t, l)
	if err := e.SeekToEvent(2); !errors.Is(err, binview.ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestInteraction_InterpolatedAtCursor(t *testing.T) {
	start := event.InteractionSnapshot{PointerState: event.PointerStateUp, Pointer: event.Point{X: 1, Y: 1}}
	move := event.Sample[event.Point]{From: event.Point{}, To: event.Point{X: 100, Y: 50}, Duration: 100}
	scroll := event.Sample[event.Point]{From: event.Point{}, To: event.Point{Y: 400}, Duration: 200}
	e := engine(t, list(t,
		event.New(0, event.Snapshot{Interaction: &start}),
		event.New(100, event.InteractionEvent{Interaction: event.PointerMove{Position: move}}),
		event.New(100, event.InteractionEvent{Interaction: event.Scroll{Target: "doc", Offset: scroll}}),
		event.New(300, event.InteractionEvent{Interaction: event.PointerDown{At: event.Point{X: 7, Y: 8}}}),
		event.New(400, event.CloseRecording{}),
	))

	seek(t, e, 150)
	s := e.Interaction()
	assert.Equal(t, s.Pointer, event.Point{X: 50, Y: 25})
	assert.Equal(t, s.Scroll["doc"], event.Point{Y: 100})

	seek(t, e, 250)
	s = e.Interaction()
	assert.Equal(t, s.Pointer, event.Point{X: 100, Y: 50})
	assert.Equal(t, s.Scroll["doc"], event.Point{Y: 300})

	seek(t, e, 350)
	s = e.Interaction()
	assert.Equal(t, s.Pointer, event.Point{X: 7, Y: 8})
	assert.Equal(t, s.PointerState, event.PointerStateDown)
	assert.Equal(t, s.Scroll["doc"], event.Point{Y: 400})

	seek(t, e, 50)
	s = e.Interaction()
	assert.Equal(t, s.Pointer, event.Point{X: 1, Y: 1})
	assert.Equal(t, s.PointerState, event.PointerStateUp)
	assert.Equal(t, len(s.Scroll), 0)
}

func TestInterpolate_Boundaries(t *testing.T) {
	s := event.Sample[event.Point]{From: event.Point{X: 10, Y: -10}, To: event.Point{X: 30, Y: 10}, Duration: 40}
	tests := []struct {
		name    string
		sample  event.Sample[event.Point]
		elapsed uint32
		want    event.Point
	}{
		{"start", s, 1000, event.Point{X: 10, Y: -10}},
		{"end", s, 1040, event.Point{X: 30, Y: 10}},
		{"after end", s, 5000, event.Point{X: 30, Y: 10}},
		{"quarter", s, 1010, event.Point{X: 15, Y: -5}},
		{"zero duration", event.Snap(event.Point{X: 3}), 1000, event.Point{X: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Interpolate(tt.sample, 1000, tt.elapsed); got != tt.want {
				t.Errorf("Interpolate = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestAdvance_StopsAtEnd(t *testing.T) {
	tree := doc(&vdom.Text{ID: "t", ParentID: "doc", Value: "a"})
	e := engine(t, list(t,
		event.New(0, event.Snapshot{DOM: &tree}),
		event.New(100, event.DOMPatch{Patch: patch.Text{TargetID: "t", Value: "b", OldValue: "a"}}),
		event.New(130, event.CloseRecording{}),
	))
	var steps int
	for {
		done, err := e.Advance(60 * time.Millisecond)
		if err != nil {
			t.Fatal(err)
		}
		steps++
		if done {
			break
		}
	}
	assert.Equal(t, steps, 3)
	_, at := e.Cursor()
	assert.Equal(t, at, uint32(130))
	assert.Equal(t, e.Tree().Get("t").(*vdom.Text).Value, "b")
}

func TestPlay_RunsToEnd(t *testing.T) {
	e := engine(t, list(t,
		event.New(0, event.Snapshot{}),
		event.New(5, event.CloseRecording{}),
	))
	var frames int
	err := e.Play(context.Background(), time.Millisecond, func(*Engine) error {
		frames++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, frames, 5)
}

func TestPlay_Cancelled(t *testing.T) {
	e := engine(t, list(t,
		event.New(0, event.Snapshot{}),
		event.New(1_000_000, event.CloseRecording{}),
	))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := e.Play(ctx, time.Millisecond, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}
