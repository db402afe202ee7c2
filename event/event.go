// Package event defines the recorded event stream: SourceEvent and its
// payload variants, their binary descriptors and the codec used by every
// other package to read and write them.
package event

import (
	"encoding/json"

	"github.com/hazyhaar/repro/patch"
	"github.com/hazyhaar/repro/vdom"
)

// Type discriminates SourceEvent payloads. Values are stable wire tags.
type Type uint8

const (
	TypeUnknown Type = iota
	TypeSnapshot
	TypeDOMPatch
	TypeInteraction
	TypeCloseRecording
	TypeNetwork
	TypeConsole
)

var typeNames = map[Type]string{
	TypeUnknown:        "unknown",
	TypeSnapshot:       "snapshot",
	TypeDOMPatch:       "dom_patch",
	TypeInteraction:    "interaction",
	TypeCloseRecording: "close_recording",
	TypeNetwork:        "network",
	TypeConsole:        "console",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return "unknown"
}

// SourceEvent is one timestamped entry of a recording. Time is in
// milliseconds since the recording started.
type SourceEvent struct {
	Time uint32
	Data Payload
}

// New builds an event.
func New(time uint32, data Payload) SourceEvent {
	return SourceEvent{Time: time, Data: data}
}

// Type returns the payload discriminator.
func (e SourceEvent) Type() Type { return TypeOf(e.Data) }

// MarshalJSON renders {"type", "time", "data"}.
func (e SourceEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string  `json:"type"`
		Time uint32  `json:"time"`
		Data Payload `json:"data"`
	}{e.Type().String(), e.Time, e.Data})
}

// Payload is one of Snapshot, DOMPatch, InteractionEvent, NetworkEvent,
// ConsoleEvent, CloseRecording or Unknown.
type Payload interface {
	Type() Type
	payload()
}

// TypeOf returns p's discriminator, TypeUnknown for nil.
func TypeOf(p Payload) Type {
	if p == nil {
		return TypeUnknown
	}
	return p.Type()
}

// Snapshot is the complete recoverable state at a point in time. A nil DOM
// means the page had no document yet.
type Snapshot struct {
	DOM         *vdom.VTree          `json:"dom"`
	Interaction *InteractionSnapshot `json:"interaction,omitempty"`
	Network     *NetworkSnapshot     `json:"network,omitempty"`
}

// DOMPatch carries one tree mutation.
type DOMPatch struct {
	Patch patch.Patch
}

// MarshalJSON adds the patch kind next to its fields.
func (d DOMPatch) MarshalJSON() ([]byte, error) {
	kind := patch.KindUnknown
	if d.Patch != nil {
		kind = d.Patch.Kind()
	}
	return json.Marshal(struct {
		Kind  string      `json:"kind"`
		Patch patch.Patch `json:"patch"`
	}{kind.String(), d.Patch})
}

// InteractionEvent carries one user interaction.
type InteractionEvent struct {
	Interaction Interaction `json:"interaction"`
}

// NetworkEvent carries one network observation.
type NetworkEvent struct {
	Message NetworkMessage `json:"message"`
}

// ConsoleEvent carries one console entry.
type ConsoleEvent struct {
	Message ConsoleMessage `json:"message"`
}

// CloseRecording marks the end of a live recording. It is the interrupt
// value that completes tail subscriptions.
type CloseRecording struct{}

// Unknown holds a payload whose discriminator this build does not know.
type Unknown struct {
	Tag uint16 `json:"tag"`
	Raw []byte `json:"raw"`
}

func (Snapshot) Type() Type         { return TypeSnapshot }
func (DOMPatch) Type() Type         { return TypeDOMPatch }
func (InteractionEvent) Type() Type { return TypeInteraction }
func (NetworkEvent) Type() Type     { return TypeNetwork }
func (ConsoleEvent) Type() Type     { return TypeConsole }
func (CloseRecording) Type() Type   { return TypeCloseRecording }
func (Unknown) Type() Type          { return TypeUnknown }

func (Snapshot) payload()         {}
func (DOMPatch) payload()         {}
func (InteractionEvent) payload() {}
func (NetworkEvent) payload()     {}
func (ConsoleEvent) payload()     {}
func (CloseRecording) payload()   {}
func (Unknown) payload()          {}

// IsClose reports whether e ends a recording.
func IsClose(e SourceEvent) bool { return e.Type() == TypeCloseRecording }
