// Package recording freezes an event log into a Recording and reads and
// writes the .repro file format.
//
// A .repro file is a gzip-compressed event container holding only encoded
// events. The recording header (codec version, id, duration) travels in
// the gzip header's extra field, as an "RP" subfield.
package recording

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/hazyhaar/repro/binview"
	"github.com/hazyhaar/repro/event"
	"github.com/hazyhaar/repro/eventlog"
)

// ErrNoHeader is returned when a file carries no recording header.
var ErrNoHeader = errors.New("recording: missing header")

// Recording is an immutable, self-describing event log.
type Recording struct {
	codecVersion uint16
	id           string
	duration     uint32
	events       *eventlog.List[event.SourceEvent]
}

// New freezes events under id. The duration is the time of the last event.
func New(id string, events *eventlog.List[event.SourceEvent]) (*Recording, error) {
	d, err := lastTime(events)
	if err != nil {
		return nil, fmt.Errorf("recording: new: %w", err)
	}
	return &Recording{
		codecVersion: event.CodecVersion,
		id:           id,
		duration:     d,
		events:       events.Slice(0, events.Len()),
	}, nil
}

func lastTime(events *eventlog.List[event.SourceEvent]) (uint32, error) {
	n := events.Len()
	if n == 0 {
		return 0, nil
	}
	lens, err := events.Over(n - 1)
	if err != nil {
		return 0, err
	}
	t, err := binview.Read(lens, event.TimeField)
	if err != nil {
		return 0, fmt.Errorf("last event time: %w", err)
	}
	return t, nil
}

func (r *Recording) ID() string           { return r.id }
func (r *Recording) CodecVersion() uint16 { return r.codecVersion }

// Duration is in milliseconds since the start of the recording.
func (r *Recording) Duration() uint32 { return r.duration }

// Len returns the number of events.
func (r *Recording) Len() int { return r.events.Len() }

// Events returns the events. Appending to the result never changes r.
func (r *Recording) Events() *eventlog.List[event.SourceEvent] {
	return r.events.Slice(0, r.events.Len())
}

type header struct {
	CodecVersion uint16 `json:"codec_version"`
	ID           string `json:"id"`
	Duration     uint32 `json:"duration"`
}

var headerDesc = binview.Struct[header]("recording_header",
	binview.Field(1, "codec_version", binview.Uint16(), func(h *header) *uint16 { return &h.CodecVersion }, 0),
	binview.Field(2, "id", binview.Char[string](36), func(h *header) *string { return &h.ID }, ""),
	binview.Field(3, "duration", binview.Uint32(), func(h *header) *uint32 { return &h.Duration }, 0),
)

var headerCodec = binview.MustCodec(headerDesc, &jsonschema.Schema{
	Type:     "object",
	Required: []string{"codec_version", "id", "duration"},
	Properties: map[string]*jsonschema.Schema{
		"codec_version": {Type: "integer"},
		"id":            {Type: "string", Pattern: `^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`},
		"duration":      {Type: "integer"},
	},
})

// MarshalBinary returns the gzip-compressed .repro bytes.
func (r *Recording) MarshalBinary() ([]byte, error) {
	h, err := headerCodec.Encode(header{CodecVersion: r.codecVersion, ID: r.id, Duration: r.duration})
	if err != nil {
		return nil, fmt.Errorf("recording: header: %w", err)
	}
	raw, err := r.events.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return eventlog.CompressExtra(raw, headerField(h))
}

// headerSubfield identifies the header in the gzip extra field.
const headerSubfield = "RP"

// headerField wraps h as a gzip extra subfield: two id bytes, a u16 LE
// length, then the data.
func headerField(h []byte) []byte {
	out := make([]byte, 4, 4+len(h))
	copy(out, headerSubfield)
	binary.LittleEndian.PutUint16(out[2:], uint16(len(h)))
	return append(out, h...)
}

// findHeader returns the header subfield of a gzip extra field.
func findHeader(extra []byte) ([]byte, bool) {
	for len(extra) >= 4 {
		n := int(binary.LittleEndian.Uint16(extra[2:]))
		if len(extra) < 4+n {
			return nil, false
		}
		if string(extra[:2]) == headerSubfield {
			return extra[4 : 4+n], true
		}
		extra = extra[4+n:]
	}
	return nil, false
}

// Encode writes r as a .repro file.
func (r *Recording) Encode(w io.Writer) error {
	data, err := r.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("recording: write: %w", err)
	}
	return nil
}

// Unmarshal parses .repro bytes. Events written by another codec version
// are migrated to the current one.
func Unmarshal(data []byte) (*Recording, error) {
	raw, extra, err := eventlog.DecompressExtra(data)
	if err != nil {
		return nil, err
	}
	hb, ok := findHeader(extra)
	if !ok {
		return nil, ErrNoHeader
	}
	h, err := headerCodec.Decode(hb)
	if err != nil {
		return nil, fmt.Errorf("recording: header: %w", err)
	}
	events, err := eventlog.Unmarshal(event.Codec, raw)
	if err != nil {
		return nil, err
	}
	duration := h.Duration
	if h.CodecVersion != event.CodecVersion {
		if events, err = migrate(events, h.CodecVersion); err != nil {
			return nil, fmt.Errorf("recording %s: %w", h.ID, err)
		}
		if duration, err = lastTime(events); err != nil {
			return nil, fmt.Errorf("recording %s: %w", h.ID, err)
		}
	}
	return &Recording{
		codecVersion: event.CodecVersion,
		id:           h.ID,
		duration:     duration,
		events:       events,
	}, nil
}

// Decode reads a .repro file.
func Decode(r io.Reader) (*Recording, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("recording: read: %w", err)
	}
	return Unmarshal(buf.Bytes())
}

func migrate(events *eventlog.List[event.SourceEvent], from uint16) (*eventlog.List[event.SourceEvent], error) {
	decoded, err := events.Values()
	if err != nil {
		return nil, err
	}
	migrated, err := event.Migrate(decoded, from, event.CodecVersion)
	if err != nil {
		return nil, err
	}
	out := eventlog.New(event.Codec)
	if err := out.Append(migrated...); err != nil {
		return nil, err
	}
	return out, nil
}
