// Package metrics exposes the Coordinator's running counters and archive
// write timings as Prometheus metrics, served over an optional HTTP listener
// alongside the download run.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TilesDownloaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tiler_tiles_downloaded_total",
		Help: "Total number of tiles successfully fetched and persisted.",
	})

	TilesCurrentProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tiler_tiles_current_progress",
		Help: "Tiles considered done (fetched or skipped) across the whole task.",
	})

	TilesTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tiler_tiles_total",
		Help: "Reconciled total tile count for the whole task.",
	})

	LayerProgress = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tiler_layer_progress",
		Help: "Tiles done within the current layer, by zoom level.",
	}, []string{"zoom"})

	FetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tiler_fetch_errors_total",
		Help: "Total number of tile fetch or persist errors.",
	})

	ArchiveWriteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tiler_archive_write_duration_seconds",
		Help:    "Time spent writing a single tile to the archive, in seconds.",
		Buckets: prometheus.DefBuckets,
	})
)

// RecordDownload updates the global progress gauges after a tile is
// persisted.
func RecordDownload(current, total int64) {
	TilesDownloaded.Inc()
	TilesCurrentProgress.Set(float64(current))
	TilesTotal.Set(float64(total))
}

// RecordLayerProgress updates the per-layer gauge for the given zoom.
func RecordLayerProgress(zoom uint32, current int64) {
	LayerProgress.WithLabelValues(strconv.FormatUint(uint64(zoom), 10)).Set(float64(current))
}

// RecordError increments the fetch error counter.
func RecordError() {
	FetchErrors.Inc()
}

// RecordArchiveWrite observes the duration of a single archive write.
func RecordArchiveWrite(d time.Duration) {
	ArchiveWriteDuration.Observe(d.Seconds())
}
