package event

import (
	"math"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/hazyhaar/repro/binview"
	"github.com/hazyhaar/repro/patch"
	"github.com/hazyhaar/repro/vdom"
)

// CodecVersion is the format version written by this build. Recordings
// carry the version they were written with; Migrations bridges versions.
const CodecVersion uint16 = 3

var pointDesc = binview.Struct[Point]("point",
	binview.Field(1, "x", binview.Float64(), func(p *Point) *float64 { return &p.X }, 0),
	binview.Field(2, "y", binview.Float64(), func(p *Point) *float64 { return &p.Y }, 0),
)

var pointSampleDesc = binview.Struct[Sample[Point]]("sample<point>",
	binview.Field(1, "from", pointDesc, func(s *Sample[Point]) *Point { return &s.From }, Point{}),
	binview.Field(2, "to", pointDesc, func(s *Sample[Point]) *Point { return &s.To }, Point{}),
	binview.Field(3, "duration", binview.Uint32(), func(s *Sample[Point]) *uint32 { return &s.Duration }, 0),
)

var pointerStateDesc = binview.Enum(8, PointerStateUnknown, PointerStateUp, PointerStateDown)

var interactionSnapshotDesc = binview.Struct[InteractionSnapshot]("interaction_snapshot",
	binview.Field(1, "pointer", pointDesc, func(s *InteractionSnapshot) *Point { return &s.Pointer }, Point{}),
	binview.Field(2, "pointer_state", pointerStateDesc, func(s *InteractionSnapshot) *PointerState { return &s.PointerState }, PointerStateUp),
	binview.Field(3, "viewport", pointDesc, func(s *InteractionSnapshot) *Point { return &s.Viewport }, Point{}),
	binview.Field(4, "scroll", binview.Map(idDesc, pointDesc),
		func(s *InteractionSnapshot) *map[vdom.SyntheticID]Point { return &s.Scroll }, nil),
)

var pointerMoveDesc = binview.Struct[PointerMove]("pointer_move",
	binview.Field(1, "position", pointSampleDesc, func(i *PointerMove) *Sample[Point] { return &i.Position }, Sample[Point]{}),
)

var pointerDownDesc = binview.Struct[PointerDown]("pointer_down",
	binview.Field(1, "at", pointDesc, func(i *PointerDown) *Point { return &i.At }, Point{}),
	binview.Field(2, "button", binview.Uint8(), func(i *PointerDown) *uint8 { return &i.Button }, 0),
)

var pointerUpDesc = binview.Struct[PointerUp]("pointer_up",
	binview.Field(1, "at", pointDesc, func(i *PointerUp) *Point { return &i.At }, Point{}),
	binview.Field(2, "button", binview.Uint8(), func(i *PointerUp) *uint8 { return &i.Button }, 0),
)

var clickDesc = binview.Struct[Click]("click",
	binview.Field(1, "targets", idsDesc, func(i *Click) *[]vdom.SyntheticID { return &i.Targets }, nil),
	binview.Field(2, "at", pointDesc, func(i *Click) *Point { return &i.At }, Point{}),
	binview.Field(3, "button", binview.Uint8(), func(i *Click) *uint8 { return &i.Button }, 0),
)

var doubleClickDesc = binview.Struct[DoubleClick]("double_click",
	binview.Field(1, "targets", idsDesc, func(i *DoubleClick) *[]vdom.SyntheticID { return &i.Targets }, nil),
	binview.Field(2, "at", pointDesc, func(i *DoubleClick) *Point { return &i.At }, Point{}),
	binview.Field(3, "button", binview.Uint8(), func(i *DoubleClick) *uint8 { return &i.Button }, 0),
)

var scrollDesc = binview.Struct[Scroll]("scroll",
	binview.Field(1, "target", idDesc, func(i *Scroll) *vdom.SyntheticID { return &i.Target }, ""),
	binview.Field(2, "offset", pointSampleDesc, func(i *Scroll) *Sample[Point] { return &i.Offset }, Sample[Point]{}),
)

var viewportResizeDesc = binview.Struct[ViewportResize]("viewport_resize",
	binview.Field(1, "size", pointSampleDesc, func(i *ViewportResize) *Sample[Point] { return &i.Size }, Sample[Point]{}),
)

var keyDownDesc = binview.Struct[KeyDown]("key_down",
	binview.Field(1, "key", strDesc, func(i *KeyDown) *string { return &i.Key }, ""),
)

var keyUpDesc = binview.Struct[KeyUp]("key_up",
	binview.Field(1, "key", strDesc, func(i *KeyUp) *string { return &i.Key }, ""),
)

var pageTransitionDesc = binview.Struct[PageTransition]("page_transition",
	binview.Field(1, "from", strDesc, func(i *PageTransition) *string { return &i.From }, ""),
	binview.Field(2, "to", strDesc, func(i *PageTransition) *string { return &i.To }, ""),
)

var interactionDesc = binview.Union("interaction",
	binview.Unknown[Interaction]{
		Wrap: func(tag uint16, raw []byte) Interaction { return UnknownInteraction{Tag: tag, Raw: raw} },
		Unwrap: func(i Interaction) (uint16, []byte, bool) {
			u, ok := i.(UnknownInteraction)
			return u.Tag, u.Raw, ok
		},
	},
	binview.Variant[Interaction](uint16(KindPointerMove), "pointer_move", pointerMoveDesc),
	binview.Variant[Interaction](uint16(KindPointerDown), "pointer_down", pointerDownDesc),
	binview.Variant[Interaction](uint16(KindPointerUp), "pointer_up", pointerUpDesc),
	binview.Variant[Interaction](uint16(KindClick), "click", clickDesc),
	binview.Variant[Interaction](uint16(KindDoubleClick), "double_click", doubleClickDesc),
	binview.Variant[Interaction](uint16(KindScroll), "scroll", scrollDesc),
	binview.Variant[Interaction](uint16(KindViewportResize), "viewport_resize", viewportResizeDesc),
	binview.Variant[Interaction](uint16(KindKeyDown), "key_down", keyDownDesc),
	binview.Variant[Interaction](uint16(KindKeyUp), "key_up", keyUpDesc),
	binview.Variant[Interaction](uint16(KindPageTransition), "page_transition", pageTransitionDesc),
)

var headersDesc = binview.Map(strDesc, strDesc)

var requestDesc = binview.Struct[Request]("request",
	binview.Field(1, "correlation_id", strDesc, func(m *Request) *string { return &m.CorrelationID }, ""),
	binview.Field(2, "method", strDesc, func(m *Request) *string { return &m.Method }, ""),
	binview.Field(3, "url", strDesc, func(m *Request) *string { return &m.URL }, ""),
	binview.Field(4, "headers", headersDesc, func(m *Request) *map[string]string { return &m.Headers }, nil),
)

var responseDesc = binview.Struct[Response]("response",
	binview.Field(1, "correlation_id", strDesc, func(m *Response) *string { return &m.CorrelationID }, ""),
	binview.Field(2, "status", binview.Uint16(), func(m *Response) *uint16 { return &m.Status }, 0),
	binview.Field(3, "headers", headersDesc, func(m *Response) *map[string]string { return &m.Headers }, nil),
	binview.Field(4, "body_size", binview.Uint64(), func(m *Response) *uint64 { return &m.BodySize }, 0),
)

var failureDesc = binview.Struct[Failure]("failure",
	binview.Field(1, "correlation_id", strDesc, func(m *Failure) *string { return &m.CorrelationID }, ""),
	binview.Field(2, "reason", strDesc, func(m *Failure) *string { return &m.Reason }, ""),
)

var networkDesc = binview.Union("network",
	binview.Unknown[NetworkMessage]{
		Wrap: func(tag uint16, raw []byte) NetworkMessage { return UnknownNetwork{Tag: tag, Raw: raw} },
		Unwrap: func(m NetworkMessage) (uint16, []byte, bool) {
			u, ok := m.(UnknownNetwork)
			return u.Tag, u.Raw, ok
		},
	},
	binview.Variant[NetworkMessage](uint16(KindRequest), "request", requestDesc),
	binview.Variant[NetworkMessage](uint16(KindResponse), "response", responseDesc),
	binview.Variant[NetworkMessage](uint16(KindFailure), "failure", failureDesc),
)

var networkSnapshotDesc = binview.Struct[NetworkSnapshot]("network_snapshot",
	binview.Field(1, "in_flight", binview.Vector(requestDesc), func(s *NetworkSnapshot) *[]Request { return &s.InFlight }, nil),
)

var consoleMessageDesc = binview.Struct[ConsoleMessage]("console_message",
	binview.Field(1, "level", binview.Enum(8, ConsoleUnknown, ConsoleDebug, ConsoleLog, ConsoleInfo, ConsoleWarn, ConsoleError),
		func(m *ConsoleMessage) *ConsoleLevel { return &m.Level }, ConsoleLog),
	binview.Field(2, "parts", binview.Vector(strDesc), func(m *ConsoleMessage) *[]string { return &m.Parts }, nil),
)

var snapshotDesc = binview.Struct[Snapshot]("snapshot",
	binview.Field(1, "dom", binview.Nullable(treeDesc), func(s *Snapshot) **vdom.VTree { return &s.DOM }, nil),
	binview.Field(2, "interaction", binview.Nullable(interactionSnapshotDesc),
		func(s *Snapshot) **InteractionSnapshot { return &s.Interaction }, nil),
	binview.Field(3, "network", binview.Nullable(networkSnapshotDesc), func(s *Snapshot) **NetworkSnapshot { return &s.Network }, nil),
)

var domPatchDesc = binview.Struct[DOMPatch]("dom_patch",
	binview.Field(1, "patch", patchDesc, func(d *DOMPatch) *patch.Patch { return &d.Patch }, patch.Patch(patch.Unknown{})),
)

var interactionEventDesc = binview.Struct[InteractionEvent]("interaction_event",
	binview.Field(1, "interaction", interactionDesc, func(e *InteractionEvent) *Interaction { return &e.Interaction },
		Interaction(UnknownInteraction{})),
)

var networkEventDesc = binview.Struct[NetworkEvent]("network_event",
	binview.Field(1, "message", networkDesc, func(e *NetworkEvent) *NetworkMessage { return &e.Message },
		NetworkMessage(UnknownNetwork{})),
)

var consoleEventDesc = binview.Struct[ConsoleEvent]("console_event",
	binview.Field(1, "message", consoleMessageDesc, func(e *ConsoleEvent) *ConsoleMessage { return &e.Message }, ConsoleMessage{}),
)

var closeRecordingDesc = binview.Struct[CloseRecording]("close_recording")

var payloadDesc = binview.Union("payload",
	binview.Unknown[Payload]{
		Wrap: func(tag uint16, raw []byte) Payload { return Unknown{Tag: tag, Raw: raw} },
		Unwrap: func(p Payload) (uint16, []byte, bool) {
			u, ok := p.(Unknown)
			return u.Tag, u.Raw, ok
		},
	},
	binview.Variant[Payload](uint16(TypeSnapshot), "snapshot", snapshotDesc),
	binview.Variant[Payload](uint16(TypeDOMPatch), "dom_patch", domPatchDesc),
	binview.Variant[Payload](uint16(TypeInteraction), "interaction", interactionEventDesc),
	binview.Variant[Payload](uint16(TypeCloseRecording), "close_recording", closeRecordingDesc),
	binview.Variant[Payload](uint16(TypeNetwork), "network", networkEventDesc),
	binview.Variant[Payload](uint16(TypeConsole), "console", consoleEventDesc),
)

var typeDesc = binview.Enum(8, TypeUnknown,
	TypeSnapshot, TypeDOMPatch, TypeInteraction, TypeCloseRecording, TypeNetwork, TypeConsole)

// Fields of the SourceEvent layout, readable through a lens without
// decoding the payload.
var (
	TypeField = binview.Computed(1, "type", typeDesc, func(e *SourceEvent) Type { return e.Type() }, TypeUnknown)
	TimeField = binview.Field(2, "time", binview.Uint32(), func(e *SourceEvent) *uint32 { return &e.Time }, 0)
	DataField = binview.Field(3, "data", payloadDesc, func(e *SourceEvent) *Payload { return &e.Data }, Payload(Unknown{}))
)

// Descriptor is the binary layout of a SourceEvent.
var Descriptor = binview.Struct[SourceEvent]("source_event", TypeField, TimeField, DataField)

// Schema constrains the JSON form of a SourceEvent before it is encoded.
func Schema() *jsonschema.Schema {
	names := make([]any, 0, len(typeNames))
	for t := TypeUnknown; t <= TypeConsole; t++ {
		names = append(names, t.String())
	}
	minTime, maxTime := 0.0, float64(math.MaxUint32)
	return &jsonschema.Schema{
		Type:     "object",
		Required: []string{"type", "time", "data"},
		Properties: map[string]*jsonschema.Schema{
			"type": {Type: "string", Enum: names},
			"time": {Type: "integer", Minimum: &minTime, Maximum: &maxTime},
			"data": {Type: "object"},
		},
	}
}

// Codec encodes, decodes and validates SourceEvents.
var Codec = binview.MustCodec(Descriptor, Schema())
