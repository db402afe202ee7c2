// Package recstore persists recordings and evicted buffer entries in
// SQLite.
package recstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/repro/event"
	"github.com/hazyhaar/repro/eventlog"
	"github.com/hazyhaar/repro/recording"
)

// ErrNotFound is returned when no recording has the requested id.
var ErrNotFound = errors.New("recstore: recording not found")

// Summary describes a stored recording without its events.
type Summary struct {
	ID           string    `json:"id"`
	CodecVersion uint16    `json:"codec_version"`
	DurationMS   uint32    `json:"duration_ms"`
	Events       int       `json:"events"`
	SizeBytes    int       `json:"size_bytes"`
	CreatedAt    time.Time `json:"created_at"`
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Default slog.Default().
func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.logger = l } }

// WithBusyTimeout sets the SQLite busy timeout. Default 10s.
func WithBusyTimeout(d time.Duration) Option { return func(s *Store) { s.busyTimeout = d } }

// WithClock sets the clock stamping created_at. Default time.Now.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// Store is a recording store. It also serves as the recorder's eviction
// sink.
type Store struct {
	db          *sql.DB
	logger      *slog.Logger
	busyTimeout time.Duration
	now         func() time.Time
}

// Open opens (creating if needed) the store at path. Use ":memory:" for a
// throwaway store.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		logger:      slog.Default(),
		busyTimeout: 10 * time.Second,
		now:         time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	db, err := openDB(path, s.busyTimeout)
	if err != nil {
		return nil, err
	}
	s.db = db
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Put stores r, replacing any recording with the same id.
func (s *Store) Put(ctx context.Context, r *recording.Recording) error {
	data, err := r.MarshalBinary()
	if err != nil {
		return fmt.Errorf("recstore: put %s: %w", r.ID(), err)
	}
	err = runTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO recordings (id, codec_version, duration_ms, event_count, size_bytes, created_at, data)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				codec_version = excluded.codec_version,
				duration_ms   = excluded.duration_ms,
				event_count   = excluded.event_count,
				size_bytes    = excluded.size_bytes,
				data          = excluded.data`,
			r.ID(), r.CodecVersion(), r.Duration(), r.Len(), len(data), s.now().UnixMilli(), data)
		return err
	})
	if err != nil {
		return fmt.Errorf("recstore: put %s: %w", r.ID(), err)
	}
	s.logger.Info("recstore: recording stored", "id", r.ID(), "events", r.Len(), "size", len(data))
	return nil
}

// Get loads a recording.
func (s *Store) Get(ctx context.Context, id string) (*recording.Recording, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM recordings WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("recstore: get %s: %w", id, err)
	}
	r, err := recording.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("recstore: get %s: %w", id, err)
	}
	return r, nil
}

// List returns up to limit recordings, newest first. limit <= 0 means all.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, codec_version, duration_ms, event_count, size_bytes, created_at
		FROM recordings ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recstore: list: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sm Summary
		var created int64
		if err := rows.Scan(&sm.ID, &sm.CodecVersion, &sm.DurationMS, &sm.Events, &sm.SizeBytes, &created); err != nil {
			return nil, fmt.Errorf("recstore: list: %w", err)
		}
		sm.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recstore: list: %w", err)
	}
	return out, nil
}

// Delete removes a recording and its evicted entries.
func (s *Store) Delete(ctx context.Context, id string) error {
	var n int64
	err := runTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM recordings WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, err = res.RowsAffected(); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM evicted WHERE recording_id = ?`, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("recstore: delete %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Persist appends entries evicted from a live buffer.
func (s *Store) Persist(ctx context.Context, recordingID string, entries [][]byte) error {
	err := runTx(ctx, s.db, func(tx *sql.Tx) error {
		var next int64
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(seq) + 1, 0) FROM evicted WHERE recording_id = ?`, recordingID,
		).Scan(&next); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO evicted (recording_id, seq, entry) VALUES (?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, e := range entries {
			if _, err := stmt.ExecContext(ctx, recordingID, next+int64(i), e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("recstore: persist %s: %w", recordingID, err)
	}
	s.logger.Debug("recstore: evicted entries persisted", "recording", recordingID, "entries", len(entries))
	return nil
}

// Evicted returns the persisted evicted entries of a recording, in
// eviction order.
func (s *Store) Evicted(ctx context.Context, recordingID string) (*eventlog.List[event.SourceEvent], error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entry FROM evicted WHERE recording_id = ? ORDER BY seq`, recordingID)
	if err != nil {
		return nil, fmt.Errorf("recstore: evicted %s: %w", recordingID, err)
	}
	defer rows.Close()

	out := eventlog.New(event.Codec)
	for rows.Next() {
		var entry []byte
		if err := rows.Scan(&entry); err != nil {
			return nil, fmt.Errorf("recstore: evicted %s: %w", recordingID, err)
		}
		out.AppendRaw(entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recstore: evicted %s: %w", recordingID, err)
	}
	return out, nil
}
