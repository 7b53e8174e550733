package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"log/slog"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yeleibo/tiledl/internal/broadcast"
	"github.com/yeleibo/tiledl/internal/config"
	"github.com/yeleibo/tiledl/internal/metrics"
	"github.com/yeleibo/tiledl/internal/progressui"
	"github.com/yeleibo/tiledl/internal/task"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download a set of map tiles into an archive",
	Long:  `download fetches every tile of a configured layer set from a tile server into an MBTiles archive or filesystem tree.`,
	RunE:  runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)

	downloadCmd.Flags().String("url", "", "Tile URL template, e.g. https://host/{z}/{x}/{y}.png")
	downloadCmd.Flags().String("name", "", "Task/map name (also the output file/directory stem)")
	downloadCmd.Flags().Int("min-zoom", 0, "Minimum zoom level")
	downloadCmd.Flags().Int("max-zoom", 0, "Maximum zoom level")
	downloadCmd.Flags().String("format", "png", "Tile image format (png, jpg, pbf, webp)")
	downloadCmd.Flags().String("schema", "xyz", "Tile row numbering scheme (xyz or tms)")
	downloadCmd.Flags().String("output-format", "files", "Archive variant: mbtiles or files")
	downloadCmd.Flags().String("output-dir", "./tiles", "Output directory for the archive")
	downloadCmd.Flags().IntP("workers", "w", 4, "Number of concurrent fetch workers")
	downloadCmd.Flags().Int("time-delay-ms", 0, "Per-request pacing delay, in milliseconds")
	downloadCmd.Flags().Bool("skip-existing", true, "Do not re-fetch tiles already present in the archive")
	downloadCmd.Flags().Bool("resume", false, "Track completed tiles in a progress ledger, resumable across restarts")
	downloadCmd.Flags().String("mask", "", "Path to a GeoJSON file bounding the download area")
	downloadCmd.Flags().Bool("progress", true, "Show a terminal progress bar")
	downloadCmd.Flags().String("metrics-addr", "", "Address to serve Prometheus metrics on, e.g. :9090 (disabled if empty)")
	downloadCmd.Flags().String("broadcast-addr", "", "Address to serve a WebSocket event broadcaster on, e.g. :9091 (disabled if empty)")

	bindFlags := []struct{ key, flag string }{
		{"download.url", "url"},
		{"download.name", "name"},
		{"download.min_zoom", "min-zoom"},
		{"download.max_zoom", "max-zoom"},
		{"download.format", "format"},
		{"download.schema", "schema"},
		{"download.output_format", "output-format"},
		{"download.output_dir", "output-dir"},
		{"download.workers", "workers"},
		{"download.time_delay_ms", "time-delay-ms"},
		{"download.skip_existing", "skip-existing"},
		{"download.resume", "resume"},
		{"download.mask", "mask"},
		{"download.progress", "progress"},
		{"download.metrics_addr", "metrics-addr"},
		{"download.broadcast_addr", "broadcast-addr"},
	}
	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, downloadCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func runDownload(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	cfg := config.AppConfig{
		Output: config.OutputConfig{
			Format:    config.OutputFormat(viper.GetString("download.output_format")),
			Directory: viper.GetString("download.output_dir"),
		},
		Task: config.TaskConfig{
			Workers:      viper.GetInt("download.workers"),
			TimeDelayMS:  viper.GetInt("download.time_delay_ms"),
			SkipExisting: viper.GetBool("download.skip_existing"),
			Resume:       viper.GetBool("download.resume"),
		},
		TileMap: config.TileMapConfig{
			URL:    viper.GetString("download.url"),
			Name:   viper.GetString("download.name"),
			Min:    viper.GetInt("download.min_zoom"),
			Max:    viper.GetInt("download.max_zoom"),
			Format: viper.GetString("download.format"),
			Schema: viper.GetString("download.schema"),
		},
	}
	if maskPath := viper.GetString("download.mask"); maskPath != "" {
		cfg.Layers = []config.LayerConfig{{Min: cfg.TileMap.Min, Max: cfg.TileMap.Max, GeoJSON: maskPath}}
	}

	bar := progressui.New(viper.GetBool("download.progress"))
	hub := broadcast.NewHub()
	broadcastDone := make(chan struct{})

	if addr := viper.GetString("download.broadcast_addr"); addr != "" {
		go hub.Run(broadcastDone)
		mux := http.NewServeMux()
		mux.Handle("/events", hub)
		srv := &http.Server{Addr: addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("broadcast server stopped", "error", err)
			}
		}()
		defer srv.Close()
	}

	if addr := viper.GetString("download.metrics_addr"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
		defer srv.Close()
	}

	events := &task.Events{
		ProgressUpdated: func(current, total int64) {
			bar.Update(current, total)
			metrics.RecordDownload(current, total)
			hub.Broadcast(broadcast.Message{Type: "progress", Data: map[string]int64{"current": current, "total": total}})
		},
		LayerProgressUpdated: func(zoom uint32, current, total int64) {
			metrics.RecordLayerProgress(zoom, current)
		},
		ErrorOccurred: func(message string) {
			metrics.RecordError()
			logger.Warn("download error", "message", message)
			hub.Broadcast(broadcast.Message{Type: "error", Data: message})
		},
		LayerCompleted: func(zoom uint32, count int64) {
			logger.Info("layer completed", "zoom", zoom, "tiles", count)
			hub.Broadcast(broadcast.Message{Type: "layer_completed", Data: map[string]int64{"zoom": int64(zoom), "count": count}})
		},
		StatusChanged: func(text string) {
			hub.Broadcast(broadcast.Message{Type: "status", Data: text})
		},
		TaskCompleted: func() {
			bar.Done()
			hub.Broadcast(broadcast.Message{Type: "task_completed"})
		},
	}

	co, err := task.New(cfg, events)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer co.Close()
	defer close(broadcastDone)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		co.Stop()
	}()

	logger.Info("starting download", "task", co.TaskName(), "min_zoom", cfg.TileMap.Min, "max_zoom", cfg.TileMap.Max)
	if err := co.Run(ctx); err != nil {
		return fmt.Errorf("download: %w", err)
	}

	logger.Info("download finished", slog.String("summary", bar.Summary()))
	return nil
}
