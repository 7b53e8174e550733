package task

import (
	"time"

	"github.com/yeleibo/tiledl/internal/tile"
)

// Events is the external event interface of spec §6, realized as a
// struct of optional callback fields — the "closure capture instead of
// shared map" redesign from §9 generalized to the whole event surface.
// Every field is nil-checked before invocation, so a consumer wires only
// the events it cares about.
type Events struct {
	ProgressUpdated      func(current, total int64)
	LayerProgressUpdated func(zoom uint32, current, total int64)
	TileDownloaded       func(c tile.Coords, bytes int, elapsed time.Duration)
	LayerCompleted       func(zoom uint32, count int64)
	TaskCompleted        func()
	ErrorOccurred        func(message string)
	StatusChanged        func(text string)
}

func (e *Events) emitProgressUpdated(current, total int64) {
	if e != nil && e.ProgressUpdated != nil {
		e.ProgressUpdated(current, total)
	}
}

func (e *Events) emitLayerProgressUpdated(zoom uint32, current, total int64) {
	if e != nil && e.LayerProgressUpdated != nil {
		e.LayerProgressUpdated(zoom, current, total)
	}
}

func (e *Events) emitTileDownloaded(c tile.Coords, bytes int, elapsed time.Duration) {
	if e != nil && e.TileDownloaded != nil {
		e.TileDownloaded(c, bytes, elapsed)
	}
}

func (e *Events) emitLayerCompleted(zoom uint32, count int64) {
	if e != nil && e.LayerCompleted != nil {
		e.LayerCompleted(zoom, count)
	}
}

func (e *Events) emitTaskCompleted() {
	if e != nil && e.TaskCompleted != nil {
		e.TaskCompleted()
	}
}

func (e *Events) emitErrorOccurred(message string) {
	if e != nil && e.ErrorOccurred != nil {
		e.ErrorOccurred(message)
	}
}

func (e *Events) emitStatusChanged(text string) {
	if e != nil && e.StatusChanged != nil {
		e.StatusChanged(text)
	}
}

// eventSink adapts *Events to fetch.EventSink; kept as a distinct type
// from Events itself because Events' fields are named identically to
// the interface methods a direct implementation would need.
type eventSink struct {
	events *Events
}

func (s eventSink) TileDownloaded(c tile.Coords, bytes int, elapsed time.Duration) {
	s.events.emitTileDownloaded(c, bytes, elapsed)
}

func (s eventSink) ProgressUpdated(current, total int64) {
	s.events.emitProgressUpdated(current, total)
}

func (s eventSink) LayerProgressUpdated(zoom uint32, current, total int64) {
	s.events.emitLayerProgressUpdated(zoom, current, total)
}

func (s eventSink) ErrorOccurred(message string) {
	s.events.emitErrorOccurred(message)
}
