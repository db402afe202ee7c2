package recorder

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/repro/event"
	"github.com/hazyhaar/repro/idgen"
	"github.com/hazyhaar/repro/recbuf"
)

// Emitter accepts payloads from capture sources.
type Emitter interface {
	Push(p event.Payload) error
}

// Source is a capture collaborator (DOM observer, interaction listener,
// network or console tap). Attach starts feeding e; Detach stops it and
// must not return while the source can still push.
type Source interface {
	Name() string
	Attach(ctx context.Context, e Emitter) error
	Detach() error
}

// Sink receives entries evicted from the buffer so they can be persisted
// before they are lost.
type Sink interface {
	Persist(ctx context.Context, recordingID string, entries [][]byte) error
}

// Options configures a Controller.
type Options struct {
	// MaxBytes is the buffer's byte budget. Default 64 MiB.
	MaxBytes int
	// SnapshotInterval is how often a full snapshot is pushed while
	// recording. Zero disables periodic snapshots.
	SnapshotInterval time.Duration
	// TailBuffer is how many undelivered events a tail subscription holds
	// before it gives up. Default 1024.
	TailBuffer int

	Sources   []Source
	Sink      Sink
	Clock     func() time.Time
	Scheduler recbuf.Scheduler
	IDGen     idgen.Generator
	Logger    *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.MaxBytes <= 0 {
		o.MaxBytes = 64 << 20
	}
	if o.TailBuffer <= 0 {
		o.TailBuffer = 1024
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.IDGen == nil {
		o.IDGen = idgen.UUIDv7()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}
