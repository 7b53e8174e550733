// Package archive implements the output persistence surface: the
// MBTiles SQLite variant and the filesystem-directory variant described
// by the specification's Persistence Layer. Archive writes are
// serialized under a single writer lock per archive; the archive and the
// progress ledger (package ledger) are independent concerns guarded by
// independent mutexes.
package archive

import (
	"errors"

	"github.com/yeleibo/tiledl/internal/tile"
)

// Tile is a fetched tile ready to persist: coordinates plus its payload
// bytes. Ownership passes from the Fetch Pipeline to the Archive; once
// Write returns the caller may discard Data.
type Tile struct {
	Coords tile.Coords
	Data   []byte
}

// Metadata is the set of archive-level fields stamped at initialization
// and, for MBTiles, written into the metadata table.
type Metadata struct {
	ID          string
	Name        string
	Description string
	Attribution string
	Format      string
	Schema      string // "xyz" or "tms"; stored as MBTiles "type"
	JSON        string // free-form TileJSON string, optional
	MinZoom     int
	MaxZoom     int
}

// ErrAlreadyExists is returned by the MBTiles variant's Write when a tile
// is already present in the archive and skip-existing was not requested
// when the archive was opened. With skip-existing, that Write ignores the
// conflict and returns nil.
var ErrAlreadyExists = errors.New("archive: tile already exists")

// Archive is the output persistence surface for one task run. Both
// implementations (MBTiles and Filesystem) are safe for concurrent use
// by multiple Fetch Pipeline workers.
type Archive interface {
	// Exists reports whether a tile is already present.
	Exists(c tile.Coords) (bool, error)

	// Write persists a tile. For MBTiles, if the tile already exists and
	// skipExisting was true at open, the write is treated as a success
	// (conflict-ignore); otherwise a duplicate is reported via
	// ErrAlreadyExists. The Filesystem variant overwrites an existing
	// file and never returns ErrAlreadyExists.
	Write(t Tile) error

	// WriteMetadata upserts archive-level metadata. A no-op for the
	// Filesystem variant.
	WriteMetadata(m Metadata) error

	// Close flushes and releases the archive's resources.
	Close() error
}
