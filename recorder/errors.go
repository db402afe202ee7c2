package recorder

import "errors"

var (
	// ErrNotStarted is returned by operations that need a live recording.
	ErrNotStarted = errors.New("recorder: not started")

	// ErrAlreadyStarted is returned by Start on a started controller.
	ErrAlreadyStarted = errors.New("recorder: already started")

	// ErrSlowConsumer ends a tail subscription whose reader fell too far
	// behind.
	ErrSlowConsumer = errors.New("recorder: tail consumer too slow")
)
