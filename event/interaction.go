package event

import (
	"maps"

	"github.com/hazyhaar/repro/vdom"
)

// Point is a 2D coordinate or size in CSS pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sample describes a continuous transition from From to To over Duration
// milliseconds.
type Sample[T any] struct {
	From     T      `json:"from"`
	To       T      `json:"to"`
	Duration uint32 `json:"duration"`
}

// Snap returns a sample that holds v without transition.
func Snap[T any](v T) Sample[T] { return Sample[T]{From: v, To: v} }

// PointerState is whether the primary pointer button is held.
type PointerState uint8

const (
	PointerStateUnknown PointerState = iota
	PointerStateUp
	PointerStateDown
)

// InteractionSnapshot is the interaction state carried by a Snapshot.
type InteractionSnapshot struct {
	Pointer      Point                      `json:"pointer"`
	PointerState PointerState               `json:"pointerState"`
	Viewport     Point                      `json:"viewport"`
	Scroll       map[vdom.SyntheticID]Point `json:"scroll,omitempty"`
}

// Clone returns a deep copy.
func (s InteractionSnapshot) Clone() InteractionSnapshot {
	c := s
	c.Scroll = maps.Clone(s.Scroll)
	return c
}

// InteractionKind discriminates Interaction variants. Values are stable
// wire tags.
type InteractionKind uint16

const (
	KindUnknownInteraction InteractionKind = iota
	KindPointerMove
	KindPointerDown
	KindPointerUp
	KindClick
	KindDoubleClick
	KindScroll
	KindViewportResize
	KindKeyDown
	KindKeyUp
	KindPageTransition
)

// Interaction is one of PointerMove, PointerDown, PointerUp, Click,
// DoubleClick, Scroll, ViewportResize, KeyDown, KeyUp, PageTransition or
// UnknownInteraction.
type Interaction interface {
	InteractionKind() InteractionKind
	interaction()
}

type PointerMove struct {
	Position Sample[Point] `json:"position"`
}

type PointerDown struct {
	At     Point `json:"at"`
	Button uint8 `json:"button"`
}

type PointerUp struct {
	At     Point `json:"at"`
	Button uint8 `json:"button"`
}

// Click lists the target and its ancestors, innermost first.
type Click struct {
	Targets []vdom.SyntheticID `json:"targets"`
	At      Point              `json:"at"`
	Button  uint8              `json:"button"`
}

type DoubleClick struct {
	Targets []vdom.SyntheticID `json:"targets"`
	At      Point              `json:"at"`
	Button  uint8              `json:"button"`
}

// Scroll moves the scroll offset of Target (the document node for the
// page itself).
type Scroll struct {
	Target vdom.SyntheticID `json:"target"`
	Offset Sample[Point]    `json:"offset"`
}

type ViewportResize struct {
	Size Sample[Point] `json:"size"`
}

type KeyDown struct {
	Key string `json:"key"`
}

type KeyUp struct {
	Key string `json:"key"`
}

// PageTransition records a navigation between two URLs.
type PageTransition struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type UnknownInteraction struct {
	Tag uint16 `json:"tag"`
	Raw []byte `json:"raw"`
}

func (PointerMove) InteractionKind() InteractionKind        { return KindPointerMove }
func (PointerDown) InteractionKind() InteractionKind        { return KindPointerDown }
func (PointerUp) InteractionKind() InteractionKind          { return KindPointerUp }
func (Click) InteractionKind() InteractionKind              { return KindClick }
func (DoubleClick) InteractionKind() InteractionKind        { return KindDoubleClick }
func (Scroll) InteractionKind() InteractionKind             { return KindScroll }
func (ViewportResize) InteractionKind() InteractionKind     { return KindViewportResize }
func (KeyDown) InteractionKind() InteractionKind            { return KindKeyDown }
func (KeyUp) InteractionKind() InteractionKind              { return KindKeyUp }
func (PageTransition) InteractionKind() InteractionKind     { return KindPageTransition }
func (UnknownInteraction) InteractionKind() InteractionKind { return KindUnknownInteraction }

func (PointerMove) interaction()        {}
func (PointerDown) interaction()        {}
func (PointerUp) interaction()          {}
func (Click) interaction()              {}
func (DoubleClick) interaction()        {}
func (Scroll) interaction()             {}
func (ViewportResize) interaction()     {}
func (KeyDown) interaction()            {}
func (KeyUp) interaction()              {}
func (PageTransition) interaction()     {}
func (UnknownInteraction) interaction() {}
