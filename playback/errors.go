package playback

import "errors"

var (
	// ErrNoSnapshot is returned when the first event is not a Snapshot:
	// there is no state to replay from.
	ErrNoSnapshot = errors.New("playback: event log does not start with a snapshot")

	// ErrOutOfRange is returned by SeekToEvent for an index outside the log.
	ErrOutOfRange = errors.New("playback: event index out of range")
)
