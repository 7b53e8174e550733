// Package task implements the Task Coordinator (C6): the state machine,
// per-layer sequencing, progress aggregation, and event emission that
// drives the Layer Planner, Fetch Pipeline, and Persistence Layer to
// completion for one configured run.
package task

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/yeleibo/tiledl/internal/archive"
	"github.com/yeleibo/tiledl/internal/config"
	"github.com/yeleibo/tiledl/internal/fetch"
	"github.com/yeleibo/tiledl/internal/layer"
	"github.com/yeleibo/tiledl/internal/ledger"
	"github.com/yeleibo/tiledl/internal/mask"
	"github.com/yeleibo/tiledl/internal/tile"
)

// Coordinator is the sole mutator of the current layer index, the sole
// emitter of top-level events, and the sole aggregator of counters
// across the Fetch Pipeline's worker goroutines, for the lifetime of one
// task run.
type Coordinator struct {
	cfg      config.AppConfig
	taskName string

	archive  archive.Archive
	ledger   *ledger.Ledger
	pipeline *fetch.Pipeline

	counters *Counters
	events   *Events
	control  *Control

	layers            []layer.Layer
	currentLayerIndex int
}

// New builds a Coordinator from an immutable configuration value and
// initializes its archive and (if resume is enabled) progress ledger.
// events may be nil; every callback field is nil-checked before use.
func New(cfg config.AppConfig, events *Events) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("task: %w", err)
	}
	if events == nil {
		events = &Events{}
	}

	taskName := cfg.TileMap.Name
	if taskName == "" {
		taskName = uuid.NewString()[:8]
	}

	layers, err := buildLayers(cfg, events)
	if err != nil {
		return nil, fmt.Errorf("task: build layers: %w", err)
	}

	arc, err := openArchive(cfg, taskName)
	if err != nil {
		return nil, fmt.Errorf("task: init archive: %w", err)
	}

	if cfg.Output.Format == config.OutputMBTiles {
		if err := arc.WriteMetadata(buildMetadata(cfg, taskName)); err != nil {
			arc.Close()
			return nil, fmt.Errorf("task: write archive metadata: %w", err)
		}
	}

	ledgerPath := filepath.Join(cfg.Output.Directory, taskName+".progress.db")
	var led *ledger.Ledger
	if cfg.Task.Resume {
		led, err = ledger.Open(ledgerPath)
		if err != nil {
			// Ledger open failure is recoverable: resume is silently
			// disabled for the rest of the task, per spec §7 item 5.
			events.emitErrorOccurred(fmt.Sprintf("ledger unavailable, resume disabled: %v", err))
			led = nil
		}
	} else if err := ledger.Remove(ledgerPath); err != nil {
		events.emitErrorOccurred(fmt.Sprintf("remove stale ledger: %v", err))
	}

	return &Coordinator{
		cfg:      cfg,
		taskName: taskName,
		archive:  arc,
		ledger:   led,
		pipeline: fetch.New(cfg.Task.Workers, time.Duration(cfg.Task.TimeDelayMS)*time.Millisecond),
		counters: NewCounters(led),
		events:   events,
		control:  NewControl(),
		layers:   layers,
	}, nil
}

func openArchive(cfg config.AppConfig, taskName string) (archive.Archive, error) {
	switch cfg.Output.Format {
	case config.OutputMBTiles:
		path := filepath.Join(cfg.Output.Directory, taskName+".mbtiles")
		return archive.OpenMBTiles(path, cfg.Task.SkipExisting)
	case config.OutputFiles:
		return archive.OpenFilesystem(cfg.Output.Directory, taskName, cfg.TileMap.Format, cfg.Task.SkipExisting)
	default:
		return nil, fmt.Errorf("unknown output format %q", cfg.Output.Format)
	}
}

func buildLayers(cfg config.AppConfig, events *Events) ([]layer.Layer, error) {
	if len(cfg.Layers) == 0 {
		var layers []layer.Layer
		for z := cfg.TileMap.Min; z <= cfg.TileMap.Max; z++ {
			layers = append(layers, layer.Layer{Zoom: uint32(z)})
		}
		return layers, nil
	}

	var layers []layer.Layer
	for _, lc := range cfg.Layers {
		m := mask.Mask{}
		if lc.GeoJSON != "" {
			loaded, err := mask.Load(lc.GeoJSON)
			if err != nil {
				// Mask parse failure is non-fatal: logged and treated as
				// an empty (unbounded) mask, per spec §7 item 2.
				events.emitErrorOccurred(fmt.Sprintf("mask parse %s: %v", lc.GeoJSON, err))
			} else {
				m = loaded
			}
		}
		for z := lc.Min; z <= lc.Max; z++ {
			layers = append(layers, layer.Layer{Zoom: uint32(z), URLOverride: lc.URL, Mask: m})
		}
	}
	return layers, nil
}

func buildMetadata(cfg config.AppConfig, taskName string) archive.Metadata {
	return archive.Metadata{
		ID:          taskName,
		Name:        cfg.TileMap.Name,
		Description: cfg.TileMap.Name,
		Attribution: `<a href="http://www.atlasdata.cn/" target="_blank">&copy; MapCloud</a>`,
		Format:      cfg.TileMap.Format,
		Schema:      cfg.TileMap.Schema,
		JSON:        cfg.TileMap.JSON,
		MinZoom:     cfg.TileMap.Min,
		MaxZoom:     cfg.TileMap.Max,
	}
}

// TaskName returns the effective task name (configured or generated).
func (c *Coordinator) TaskName() string { return c.taskName }

// State returns the Coordinator's current lifecycle state.
func (c *Coordinator) State() State { return c.control.State() }

// Counters exposes the running totals for an external observer (e.g.
// the Prometheus metrics surface).
func (c *Coordinator) Counters() *Counters { return c.counters }

// Pause stops admitting new work; in-flight requests run to completion.
func (c *Coordinator) Pause() { c.control.Pause(); c.events.emitStatusChanged("paused") }

// Resume re-admits work after a Pause.
func (c *Coordinator) Resume() { c.control.Resume(); c.events.emitStatusChanged("running") }

// Stop ends admission immediately and drops the pending queue;
// in-flight requests still complete and may still be persisted.
func (c *Coordinator) Stop() { c.control.Stop(); c.events.emitStatusChanged("stopped") }

// Close releases the archive and ledger handles. Callers should defer
// Close after Run returns (or after Stop, if the run is abandoned).
func (c *Coordinator) Close() error {
	var firstErr error
	if err := c.archive.Close(); err != nil {
		firstErr = err
	}
	if c.ledger != nil {
		if err := c.ledger.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Run drives every configured Layer to completion in sequence: Idle ->
// Running -> (per layer: plan, reconcile counters, fetch, drain) ->
// Done, unless Stop is called first, in which case it returns once the
// in-flight layer's requests finish without advancing further.
func (c *Coordinator) Run(ctx context.Context) error {
	c.control.Start()
	c.events.emitStatusChanged("running")

	var estimateTotal int64
	for _, l := range c.layers {
		estimateTotal += layer.Estimate(l)
	}
	c.counters.SetTotalTiles(estimateTotal)

	sink := eventSink{events: c.events}

	for idx, l := range c.layers {
		if c.control.State() == Stopped {
			break
		}
		c.currentLayerIndex = idx
		c.runLayer(ctx, l, sink)
		if c.control.State() == Stopped {
			break
		}
	}

	if c.control.State() != Stopped {
		c.control.Finish()
		c.events.emitTaskCompleted()
	}
	return nil
}

func (c *Coordinator) runLayer(ctx context.Context, l layer.Layer, sink eventSink) {
	estimate := layer.Estimate(l)

	var survivors []tile.Coords
	var skipped int64
	for cand := range layer.Enumerate(ctx, l) {
		done, err := c.alreadyDone(cand)
		if err != nil {
			c.events.emitErrorOccurred(fmt.Sprintf("tile %s: %v", cand, err))
		}
		if done {
			skipped++
			continue
		}
		survivors = append(survivors, cand)
	}

	actual := int64(len(survivors))

	// §4.3 count reconciliation: substitute the estimate with the
	// actual enumerated-and-filtered size before workers start.
	c.counters.AddTotalTiles(actual + skipped - estimate)
	c.counters.ResetLayer(actual + skipped)
	for i := int64(0); i < skipped; i++ {
		c.counters.SkipTile()
	}

	queue := make(chan tile.Coords, len(survivors))
	for _, s := range survivors {
		queue <- s
	}
	close(queue)

	urlTemplate := l.URLOverride
	if urlTemplate == "" {
		urlTemplate = c.cfg.TileMap.URL
	}

	c.pipeline.Run(ctx, queue, urlTemplate, l.Zoom, c.archive, c.counters, sink, c.control)

	c.events.emitLayerCompleted(l.Zoom, actual)
}

func (c *Coordinator) alreadyDone(cand tile.Coords) (bool, error) {
	if c.cfg.Task.SkipExisting {
		exists, err := c.archive.Exists(cand)
		if err != nil {
			return false, fmt.Errorf("exists check: %w", err)
		}
		if exists {
			return true, nil
		}
	}
	if c.ledger != nil {
		done, err := c.ledger.IsDone(cand)
		if err != nil {
			return false, fmt.Errorf("ledger check: %w", err)
		}
		if done {
			return true, nil
		}
	}
	return false, nil
}
