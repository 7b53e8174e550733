package task

import (
	"sync/atomic"

	"github.com/yeleibo/tiledl/internal/ledger"
	"github.com/yeleibo/tiledl/internal/tile"
)

// NewCounters returns a zeroed Counters. led may be nil when resume is
// disabled, in which case MarkDone is a no-op.
func NewCounters(led *ledger.Ledger) *Counters {
	return &Counters{ledger: led}
}

// Counters holds the Data Model's atomic progress counters, owned
// exclusively by the Coordinator for the lifetime of a task run.
type Counters struct {
	totalTiles      atomic.Int64
	currentProgress atomic.Int64
	downloadedTiles atomic.Int64
	layerTotal      atomic.Int64
	layerProgress   atomic.Int64

	ledger *ledger.Ledger // nil when resume is disabled
}

// TotalTiles returns the current (possibly still-estimated) total.
func (c *Counters) TotalTiles() int64 { return c.totalTiles.Load() }

// CurrentProgress returns tiles considered done (fetched + skipped).
func (c *Counters) CurrentProgress() int64 { return c.currentProgress.Load() }

// DownloadedTiles returns tiles actually fetched over the network.
func (c *Counters) DownloadedTiles() int64 { return c.downloadedTiles.Load() }

// SetTotalTiles seeds or rewrites the total, per the §4.3 count
// reconciliation the Coordinator performs before each layer's workers
// start.
func (c *Counters) SetTotalTiles(v int64) { c.totalTiles.Store(v) }

// AddTotalTiles adjusts the running total by delta, used by the
// reconciliation formula `total_tiles += queued + skipped - estimate`.
func (c *Counters) AddTotalTiles(delta int64) { c.totalTiles.Add(delta) }

// ResetLayer zeroes the per-layer progress counter and sets its total,
// called once per layer before that layer's workers start.
func (c *Counters) ResetLayer(total int64) {
	c.layerProgress.Store(0)
	c.layerTotal.Store(total)
}

// SkipTile records a tile that was filtered out before fetch (already
// present in the archive, or already marked done in the ledger): it
// counts toward progress but never toward downloads.
func (c *Counters) SkipTile() {
	c.currentProgress.Add(1)
	c.layerProgress.Add(1)
}

// RecordDownload implements fetch.ProgressRecorder: called once a tile
// is durably persisted, it increments both downloaded_tiles and
// current_progress and returns the updated (current, total) pair.
func (c *Counters) RecordDownload(tile.Coords) (current, total int64) {
	c.downloadedTiles.Add(1)
	current = c.currentProgress.Add(1)
	total = c.totalTiles.Load()
	return current, total
}

// RecordLayerProgress implements fetch.ProgressRecorder for the
// per-layer counters.
func (c *Counters) RecordLayerProgress(tile.Coords) (current, total int64) {
	current = c.layerProgress.Add(1)
	total = c.layerTotal.Load()
	return current, total
}

// MarkDone implements fetch.ProgressRecorder: writes to the progress
// ledger when resume is enabled, otherwise a no-op. A ledger write
// failure is discarded and no event reports it — Counters has no Events
// reference, keeping it a pure aggregator.
func (c *Counters) MarkDone(t tile.Coords) {
	if c.ledger == nil {
		return
	}
	_ = c.ledger.Mark(t) // best-effort; a resumed run re-fetches on failure
}
