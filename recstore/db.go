package recstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const maxRetries = 3

const schema = `
CREATE TABLE IF NOT EXISTS recordings (
	id            TEXT PRIMARY KEY,
	codec_version INTEGER NOT NULL,
	duration_ms   INTEGER NOT NULL,
	event_count   INTEGER NOT NULL,
	size_bytes    INTEGER NOT NULL,
	created_at    INTEGER NOT NULL,
	data          BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS recordings_created ON recordings(created_at DESC);

CREATE TABLE IF NOT EXISTS evicted (
	recording_id TEXT NOT NULL,
	seq          INTEGER NOT NULL,
	entry        BLOB NOT NULL,
	PRIMARY KEY (recording_id, seq)
);
`

// openDB opens path with WAL, a busy timeout and NORMAL sync, then applies
// the schema. ":memory:" is pinned to one connection since every
// connection to it is a separate database.
func openDB(path string, busyTimeout time.Duration) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("recstore: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("recstore: open: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()),
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("recstore: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("recstore: schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("recstore: ping: %w", err)
	}
	return db, nil
}

// isBusy reports whether err is an SQLite BUSY condition.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// runTx runs fn in a transaction, retrying on SQLITE_BUSY with a
// 100/200 ms backoff.
func runTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	for i := range maxRetries {
		err := runOnce(ctx, db, fn)
		if err == nil || !isBusy(err) || i == maxRetries-1 {
			return err
		}
		t := time.NewTimer(time.Duration(100*(i+1)) * time.Millisecond)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("recstore: retry: %w", ctx.Err())
		case <-t.C:
		}
	}
	return nil
}

func runOnce(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("recstore: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("recstore: commit: %w", err)
	}
	return nil
}
