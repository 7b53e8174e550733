// Package ledger implements the progress ledger described by the
// specification's ProgressLedger: an optional SQLite file recording
// which tiles have been fetched, keyed on (z, x, y), used so a resumed
// run can skip already-acknowledged tiles without rescanning the
// archive. It exists only when resume mode is enabled.
package ledger

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yeleibo/tiledl/internal/tile"
)

// Ledger is the progress ledger for one task run. Guarded by an
// independent mutex from the output archive; both tolerate concurrent
// callers from the worker pool.
type Ledger struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens or creates the ledger file at path. If resume is not
// requested by the caller, the caller should call Remove instead of
// Open; Open always assumes resume is enabled for the returned handle.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}
	schema := `
		CREATE TABLE IF NOT EXISTS downloaded_tiles (
			z INTEGER NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			downloaded_at INTEGER NOT NULL,
			PRIMARY KEY (z, x, y)
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: create schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Remove deletes any pre-existing ledger file at path. Called when
// resume is not enabled for the task, per §4.4's Initialize contract.
func Remove(path string) error {
	return removeIfExists(path)
}

// Mark records a tile as downloaded. INSERT OR IGNORE, so a duplicate
// mark (e.g. after a crash between archive-write and ledger-mark on a
// prior run) is tolerated rather than surfaced as an error, per the
// conflict-ignore decision in spec §9.
func (l *Ledger) Mark(c tile.Coords) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.Exec(
		`INSERT OR IGNORE INTO downloaded_tiles (z, x, y, downloaded_at) VALUES (?, ?, ?, ?)`,
		c.Z, c.X, c.Y, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("ledger: mark %s: %w", c, err)
	}
	return nil
}

// IsDone reports whether a tile has already been marked downloaded.
func (l *Ledger) IsDone(c tile.Coords) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var one int
	err := l.db.QueryRow(
		`SELECT 1 FROM downloaded_tiles WHERE z = ? AND x = ? AND y = ?`,
		c.Z, c.X, c.Y,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ledger: is_done query: %w", err)
	}
	return true, nil
}

// Count returns the number of tiles recorded as downloaded.
func (l *Ledger) Count() (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var n int64
	if err := l.db.QueryRow(`SELECT COUNT(*) FROM downloaded_tiles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("ledger: count: %w", err)
	}
	return n, nil
}

// Close releases the underlying database handle.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Close()
}
