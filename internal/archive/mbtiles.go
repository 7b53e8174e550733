package archive

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/yeleibo/tiledl/internal/metrics"
	"github.com/yeleibo/tiledl/internal/tile"
)

// MBTiles is the SQLite-backed Archive variant described by the
// specification's TileArchive MBTilesVariant. Tiles are stored with
// tile_row in TMS convention; writes are serialized under mu, matching
// the single-writer-lock-per-archive discipline of §4.4.
type MBTiles struct {
	mu           sync.Mutex
	db           *sql.DB
	skipExisting bool
}

// OpenMBTiles opens or creates the archive at path. When skipExisting is
// false and the file already exists, it is deleted and recreated; when
// true, it is opened in place and augmented, matching the Initialize
// contract in §4.4.
func OpenMBTiles(path string, skipExisting bool) (*MBTiles, error) {
	if !skipExisting {
		if err := removeIfExists(path); err != nil {
			return nil, fmt.Errorf("archive: remove existing mbtiles: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("archive: open mbtiles: %w", err)
	}

	// Tuned for throughput, not durability: the progress ledger, not the
	// archive, is the source of truth for resume.
	pragmas := []string{
		"PRAGMA synchronous = OFF",
		"PRAGMA locking_mode = EXCLUSIVE",
		"PRAGMA journal_mode = DELETE",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("archive: set pragma %q: %w", p, err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS tiles (
			zoom_level INTEGER NOT NULL,
			tile_column INTEGER NOT NULL,
			tile_row INTEGER NOT NULL,
			tile_data BLOB NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS tiles_zxy ON tiles (zoom_level, tile_column, tile_row);
		CREATE TABLE IF NOT EXISTS metadata (
			name TEXT NOT NULL,
			value TEXT
		);
		CREATE UNIQUE INDEX IF NOT EXISTS metadata_name ON metadata (name);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: create mbtiles schema: %w", err)
	}

	return &MBTiles{db: db, skipExisting: skipExisting}, nil
}

// Exists reports whether a tile is present, keyed by (z, x, row_tms).
func (a *MBTiles) Exists(c tile.Coords) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	row := c.RowTMS()
	var one int
	err := a.db.QueryRow(
		`SELECT 1 FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?`,
		c.Z, c.X, row,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("archive: exists query: %w", err)
	}
	return true, nil
}

// Write inserts a tile row, tile_row computed as the TMS flip of the
// tile's XYZ row. A unique-index conflict is treated as success when
// skipExisting was set at Initialize, otherwise it is surfaced as
// ErrAlreadyExists (conflict-ignore per §9's ledger/archive race note).
func (a *MBTiles) Write(t Tile) error {
	start := time.Now()
	defer func() { metrics.RecordArchiveWrite(time.Since(start)) }()

	a.mu.Lock()
	defer a.mu.Unlock()

	row := t.Coords.RowTMS()
	if a.skipExisting {
		_, err := a.db.Exec(
			`INSERT OR IGNORE INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)`,
			t.Coords.Z, t.Coords.X, row, t.Data,
		)
		if err != nil {
			return fmt.Errorf("archive: insert tile %s: %w", t.Coords, err)
		}
		return nil
	}

	_, err := a.db.Exec(
		`INSERT INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)`,
		t.Coords.Z, t.Coords.X, row, t.Data,
	)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("archive: insert tile %s: %w", t.Coords, err)
	}
	return nil
}

// WriteMetadata upserts the archive-level MBTiles metadata table.
func (a *MBTiles) WriteMetadata(m Metadata) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	kv := metadataToMap(m)

	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("archive: begin metadata tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.Prepare(`INSERT INTO metadata (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`)
	if err != nil {
		return fmt.Errorf("archive: prepare metadata upsert: %w", err)
	}
	defer stmt.Close()

	for name, value := range kv {
		if _, err := stmt.Exec(name, value); err != nil {
			return fmt.Errorf("archive: upsert metadata %q: %w", name, err)
		}
	}
	return tx.Commit()
}

// Close releases the underlying database handle.
func (a *MBTiles) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.db.Close()
}

func metadataToMap(m Metadata) map[string]string {
	kv := map[string]string{
		"pixel_scale": "256",
		"version":     "1.2",
	}
	if m.ID != "" {
		kv["id"] = m.ID
	}
	if m.Name != "" {
		kv["name"] = m.Name
	}
	if m.Description != "" {
		kv["description"] = m.Description
	}
	if m.Attribution != "" {
		kv["attribution"] = m.Attribution
	}
	if m.Name != "" {
		kv["basename"] = m.Name
	}
	if m.Format != "" {
		kv["format"] = m.Format
	}
	if m.Schema != "" {
		kv["type"] = m.Schema
	}
	// bounds/center are always the world-default literals, regardless of
	// any configured mask: matching the original's simplified calculation.
	kv["bounds"] = "-180.0,-85.0,180.0,85.0"
	kv["center"] = fmt.Sprintf("0.0,0.0,%d", (m.MinZoom+m.MaxZoom)/2)
	kv["minzoom"] = strconv.Itoa(m.MinZoom)
	kv["maxzoom"] = strconv.Itoa(m.MaxZoom)
	if m.JSON != "" {
		kv["json"] = m.JSON
	}
	return kv
}

func isUniqueConstraintErr(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique")
}
