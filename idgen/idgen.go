// Package idgen provides pluggable ID generation for recordings, synthetic
// node identifiers and live subscriptions.
//
// Constructors across the module accept a Generator, so the ID strategy is a
// startup-time decision: tests inject Sequence for deterministic trees, the
// capture agent uses Short for compact node ids.
package idgen

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Generator produces unique string identifiers.
type Generator func() string

const shortAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// Short returns a Generator of random base-62 IDs of the given length.
// Synthetic node ids are written into every patch, so they are kept short.
func Short(length int) Generator {
	return func() string {
		buf := make([]byte, length)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		for i := range buf {
			buf[i] = shortAlphabet[int(buf[i])%len(shortAlphabet)]
		}
		return string(buf)
	}
}

// Sequence returns a Generator yielding prefix+"1", prefix+"2", ...
// It never repeats within the lifetime of the returned Generator, which is
// all a single recording requires.
func Sequence(prefix string) Generator {
	var n atomic.Uint64
	return func() string {
		return prefix + strconv.FormatUint(n.Add(1), 10)
	}
}

// UUIDv7 returns a Generator of RFC 9562 UUID v7 strings (36 bytes,
// time-sortable). Recording ids use it.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// ULID returns a Generator of monotonic ULIDs. Safe for concurrent use.
func ULID() Generator {
	var mu sync.Mutex
	entropy := ulid.Monotonic(rand.Reader, 0)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is the recording id generator: UUIDv7.
var Default Generator = UUIDv7()

// New produces an ID using the Default generator.
func New() string {
	return Default()
}

// Parse validates a UUID string and returns its canonical form.
func Parse(s string) (string, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("idgen: invalid UUID: %w", err)
	}
	return u.String(), nil
}
