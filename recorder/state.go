package recorder

import (
	"maps"
	"slices"

	"github.com/hazyhaar/repro/event"
	"github.com/hazyhaar/repro/patch"
	"github.com/hazyhaar/repro/vdom"
)

// state is the page state implied by a prefix of the event stream: the
// document, the interaction values and the requests still in flight.
type state struct {
	dom         *vdom.Editor
	interaction event.InteractionSnapshot
	inFlight    map[string]event.Request
}

func newState() *state {
	return &state{
		dom:         vdom.NewEditor(),
		interaction: event.InteractionSnapshot{PointerState: event.PointerStateUp},
		inFlight:    make(map[string]event.Request),
	}
}

func (s *state) clone() *state {
	c := &state{
		dom:         vdom.NewEditor(),
		interaction: s.interaction.Clone(),
		inFlight:    maps.Clone(s.inFlight),
	}
	c.dom.Reset(s.dom.Tree())
	return c
}

// apply folds one payload into the state.
func (s *state) apply(p event.Payload) error {
	switch p := p.(type) {
	case event.Snapshot:
		if p.DOM != nil {
			s.dom.Reset(*p.DOM)
		} else {
			s.dom.Reset(vdom.VTree{})
		}
		if p.Interaction != nil {
			s.interaction = p.Interaction.Clone()
		}
		if p.Network != nil {
			s.inFlight = make(map[string]event.Request, len(p.Network.InFlight))
			for _, r := range p.Network.InFlight {
				s.inFlight[r.CorrelationID] = r
			}
		}
	case event.DOMPatch:
		return patch.ApplyTo(s.dom, p.Patch)
	case event.InteractionEvent:
		s.applyInteraction(p.Interaction)
	case event.NetworkEvent:
		switch m := p.Message.(type) {
		case event.Request:
			s.inFlight[m.CorrelationID] = m
		case event.Response:
			delete(s.inFlight, m.CorrelationID)
		case event.Failure:
			delete(s.inFlight, m.CorrelationID)
		}
	}
	return nil
}

func (s *state) applyInteraction(i event.Interaction) {
	is := &s.interaction
	switch i := i.(type) {
	case event.PointerMove:
		is.Pointer = i.Position.To
	case event.PointerDown:
		is.Pointer, is.PointerState = i.At, event.PointerStateDown
	case event.PointerUp:
		is.Pointer, is.PointerState = i.At, event.PointerStateUp
	case event.Click:
		is.Pointer = i.At
	case event.DoubleClick:
		is.Pointer = i.At
	case event.Scroll:
		if is.Scroll == nil {
			is.Scroll = make(map[vdom.SyntheticID]event.Point)
		}
		is.Scroll[i.Target] = i.Offset.To
	case event.ViewportResize:
		is.Viewport = i.Size.To
	}
}

// snapshot captures the state. An empty document is recorded as no DOM.
// The tree shares nodes with the state but later edits never modify it.
func (s *state) snapshot() event.Snapshot {
	var snap event.Snapshot
	if s.dom.Len() > 0 {
		t := s.dom.Tree()
		snap.DOM = &t
	}
	return s.complete(snap)
}

// complete fills the interaction and network parts a snapshot left nil
// from the live state, so every recorded snapshot is self-contained.
func (s *state) complete(snap event.Snapshot) event.Snapshot {
	if snap.Interaction == nil {
		is := s.interaction.Clone()
		snap.Interaction = &is
	}
	if snap.Network == nil {
		snap.Network = &event.NetworkSnapshot{}
		for _, id := range slices.Sorted(maps.Keys(s.inFlight)) {
			snap.Network.InFlight = append(snap.Network.InFlight, s.inFlight[id])
		}
	}
	return snap
}
