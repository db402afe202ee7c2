package playback

import (
	"maps"

	"github.com/hazyhaar/repro/event"
	"github.com/hazyhaar/repro/vdom"
)

// Interpolate returns the value of s at elapsed, for a sample that started
// at t0. It snaps to To once the sample is over or when it has no duration,
// and interpolates each axis linearly in between.
func Interpolate(s event.Sample[event.Point], t0, elapsed uint32) event.Point {
	if s.Duration == 0 || uint64(elapsed) >= uint64(t0)+uint64(s.Duration) {
		return s.To
	}
	if elapsed <= t0 {
		return s.From
	}
	f := float64(elapsed-t0) / float64(s.Duration)
	return event.Point{
		X: s.From.X + (s.To.X-s.From.X)*f,
		Y: s.From.Y + (s.To.Y-s.From.Y)*f,
	}
}

// InteractionState is the interaction view at the playback cursor.
type InteractionState struct {
	Pointer      event.Point                      `json:"pointer"`
	PointerState event.PointerState               `json:"pointerState"`
	Viewport     event.Point                      `json:"viewport"`
	Scroll       map[vdom.SyntheticID]event.Point `json:"scroll,omitempty"`
}

type motion struct {
	sample event.Sample[event.Point]
	start  uint32
}

func (m *motion) at(elapsed uint32) event.Point { return Interpolate(m.sample, m.start, elapsed) }

// track folds interaction events. Point values that arrived as samples are
// kept as motions and resolved against the cursor time on read.
type track struct {
	base     event.InteractionSnapshot
	pointer  *motion
	viewport *motion
	scroll   map[vdom.SyntheticID]*motion
}

func (t *track) reset(s *event.InteractionSnapshot) {
	*t = track{base: event.InteractionSnapshot{PointerState: event.PointerStateUp}}
	if s != nil {
		t.base = s.Clone()
	}
}

func (t *track) apply(at uint32, i event.Interaction) {
	switch i := i.(type) {
	case event.PointerMove:
		t.pointer = &motion{sample: i.Position, start: at}
	case event.PointerDown:
		t.pointer, t.base.Pointer, t.base.PointerState = nil, i.At, event.PointerStateDown
	case event.PointerUp:
		t.pointer, t.base.Pointer, t.base.PointerState = nil, i.At, event.PointerStateUp
	case event.Click:
		t.pointer, t.base.Pointer = nil, i.At
	case event.DoubleClick:
		t.pointer, t.base.Pointer = nil, i.At
	case event.Scroll:
		if t.scroll == nil {
			t.scroll = make(map[vdom.SyntheticID]*motion)
		}
		t.scroll[i.Target] = &motion{sample: i.Offset, start: at}
	case event.ViewportResize:
		t.viewport = &motion{sample: i.Size, start: at}
	}
}

func (t *track) state(elapsed uint32) InteractionState {
	s := InteractionState{
		Pointer:      t.base.Pointer,
		PointerState: t.base.PointerState,
		Viewport:     t.base.Viewport,
		Scroll:       maps.Clone(t.base.Scroll),
	}
	if t.pointer != nil {
		s.Pointer = t.pointer.at(elapsed)
	}
	if t.viewport != nil {
		s.Viewport = t.viewport.at(elapsed)
	}
	if len(t.scroll) > 0 && s.Scroll == nil {
		s.Scroll = make(map[vdom.SyntheticID]event.Point, len(t.scroll))
	}
	for id, m := range t.scroll {
		s.Scroll[id] = m.at(elapsed)
	}
	return s
}
