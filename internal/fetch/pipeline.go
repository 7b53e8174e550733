// Package fetch implements the bounded-concurrency HTTP fetch pipeline
// described by the specification's Fetch Pipeline (C5): a single
// producer (the work queue) and W in-flight requests, with per-request
// pacing and a no-retry failure policy. Ownership of a dispatched
// response is established the redesigned way spec §9 calls for: each
// goroutine captures its own tile directly via closure, so no shared
// pending-request map is needed.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/yeleibo/tiledl/internal/archive"
	"github.com/yeleibo/tiledl/internal/tile"
)

// userAgent and referer are hardcoded per spec §4.5 step 2 / SUPPLEMENTED
// FEATURES item 6: the original hardcodes these on every request with no
// configuration override.
const (
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	referer   = "https://map.tianditu.gov.cn"
)

// Admitter gates admission of new work. Run calls Admit for each tile it
// receives from the queue, before dispatching it; a false return means
// "stop admitting new work" (the Coordinator's stop transition): that
// tile and the rest of the queue are dropped. Admit may also block
// (the pause transition) until resumed, stopped, or ctx is canceled.
type Admitter interface {
	Admit(ctx context.Context) bool
}

// ProgressRecorder aggregates per-tile completion into the Coordinator's
// counters and, when resume is enabled, the progress ledger. It is the
// sole place counters are mutated, keeping Run itself free of counter
// state.
type ProgressRecorder interface {
	// RecordDownload is called once a tile has been durably persisted;
	// it returns the updated (current_progress, total_tiles) pair.
	RecordDownload(c tile.Coords) (current, total int64)
	// RecordLayerProgress mirrors RecordDownload for the per-layer
	// counters, returning (layer_progress, layer_total).
	RecordLayerProgress(c tile.Coords) (current, total int64)
	// MarkDone records the tile in the progress ledger. A no-op when
	// resume is disabled.
	MarkDone(c tile.Coords)
}

// EventSink receives the per-tile event stream. Implementations must be
// safe for concurrent use; Run invokes these directly from worker
// goroutines.
type EventSink interface {
	TileDownloaded(c tile.Coords, bytes int, elapsed time.Duration)
	ProgressUpdated(current, total int64)
	LayerProgressUpdated(zoom uint32, current, total int64)
	ErrorOccurred(message string)
}

// Pipeline drives up to Workers concurrent HTTP GETs against a tile
// server, pacing each request by TimeDelay before it is issued.
type Pipeline struct {
	Client    *http.Client
	Workers   int
	TimeDelay time.Duration
}

// New returns a Pipeline with a sane default HTTP client timeout.
func New(workers int, timeDelay time.Duration) *Pipeline {
	return &Pipeline{
		Client:    &http.Client{Timeout: 30 * time.Second},
		Workers:   workers,
		TimeDelay: timeDelay,
	}
}

// Run drains queue with at most Workers concurrent requests in flight,
// persisting successes to a and reporting completion through progress
// and events. It returns once the queue is exhausted and every in-flight
// request has completed, or once ctrl.Admit stops admitting new work and
// the requests already dispatched finish — the in-flight ones are never
// aborted, per §5's cancellation semantics.
func (p *Pipeline) Run(
	ctx context.Context,
	queue <-chan tile.Coords,
	urlTemplate string,
	zoom uint32,
	a archive.Archive,
	progress ProgressRecorder,
	events EventSink,
	ctrl Admitter,
) {
	workers := p.Workers
	if workers < 1 {
		workers = 1
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for c := range queue {
		if !ctrl.Admit(ctx) {
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(c tile.Coords) {
			defer wg.Done()
			defer func() { <-sem }()
			p.fetchOne(ctx, c, urlTemplate, zoom, a, progress, events)
		}(c)
	}

	wg.Wait()
}

func (p *Pipeline) fetchOne(
	ctx context.Context,
	c tile.Coords,
	urlTemplate string,
	zoom uint32,
	a archive.Archive,
	progress ProgressRecorder,
	events EventSink,
) {
	if p.TimeDelay > 0 {
		select {
		case <-time.After(p.TimeDelay):
		case <-ctx.Done():
			return
		}
	}

	start := time.Now()
	url := tile.URLOf(urlTemplate, c.Z, c.X, c.Y)

	data, err := p.get(ctx, url)
	if err != nil {
		events.ErrorOccurred(fmt.Sprintf("tile %s: %v", c, err))
		return
	}

	if err := a.Write(archive.Tile{Coords: c, Data: data}); err != nil {
		events.ErrorOccurred(fmt.Sprintf("tile %s: persist: %v", c, err))
		return
	}

	elapsed := time.Since(start)
	progress.MarkDone(c)
	current, total := progress.RecordDownload(c)
	layerCurrent, layerTotal := progress.RecordLayerProgress(c)

	events.TileDownloaded(c, len(data), elapsed)
	events.ProgressUpdated(current, total)
	events.LayerProgressUpdated(zoom, layerCurrent, layerTotal)
}

func (p *Pipeline) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", referer)

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty response body")
	}
	return data, nil
}
