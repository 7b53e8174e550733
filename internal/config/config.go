// Package config defines the immutable configuration value threaded
// through the engine's constructors, replacing the original's
// process-wide configuration singleton per spec §9's redesign note. A
// value is built once, at CLI startup, from viper-bound flags/env/file,
// and never read from a package-level global afterward.
package config

import "fmt"

// OutputFormat selects the output archive variant (§6 output.format).
type OutputFormat string

const (
	OutputMBTiles OutputFormat = "mbtiles"
	OutputFiles   OutputFormat = "files"
)

// OutputConfig mirrors the original's OutputConfig struct.
type OutputConfig struct {
	Format    OutputFormat
	Directory string
}

// TaskConfig mirrors the original's TaskConfig struct.
type TaskConfig struct {
	Workers      int
	TimeDelayMS  int
	SkipExisting bool
	Resume       bool
}

// TileMapConfig mirrors the original's TileMapConfig struct: the
// TileSource description from spec §3.
type TileMapConfig struct {
	URL    string
	Name   string
	Min    int
	Max    int
	Format string // png|jpg|pbf|webp
	Schema string // xyz|tms
	JSON   string
}

// LayerConfig is one entry of the §6 lrs.* array: a per-layer override.
type LayerConfig struct {
	Min     int
	Max     int
	GeoJSON string
	URL     string
}

// AppConfig is the complete, immutable configuration for one task run,
// the sum of the §6 configuration table.
type AppConfig struct {
	Output  OutputConfig
	Task    TaskConfig
	TileMap TileMapConfig
	Layers  []LayerConfig
}

// Validate checks the configuration invariants a task cannot start
// without: these are the Config/Init fatal errors of spec §7.
func (c AppConfig) Validate() error {
	if c.TileMap.URL == "" {
		return fmt.Errorf("config: tm.url is required")
	}
	if c.Output.Directory == "" {
		return fmt.Errorf("config: output.directory is required")
	}
	if c.Output.Format != OutputMBTiles && c.Output.Format != OutputFiles {
		return fmt.Errorf("config: output.format must be %q or %q, got %q", OutputMBTiles, OutputFiles, c.Output.Format)
	}
	if c.Task.Workers < 1 {
		return fmt.Errorf("config: task.workers must be >= 1, got %d", c.Task.Workers)
	}
	if c.Task.TimeDelayMS < 0 {
		return fmt.Errorf("config: task.timedelay must be >= 0, got %d", c.Task.TimeDelayMS)
	}
	if c.TileMap.Min < 0 || c.TileMap.Max < c.TileMap.Min {
		return fmt.Errorf("config: tm.min/tm.max invalid: min=%d max=%d", c.TileMap.Min, c.TileMap.Max)
	}
	return nil
}

// Default returns an AppConfig with the same defaults the CLI flags
// carry, used directly by tests and library callers that skip viper.
func Default() AppConfig {
	return AppConfig{
		Output: OutputConfig{
			Format:    OutputFiles,
			Directory: "./tiles",
		},
		Task: TaskConfig{
			Workers:      4,
			TimeDelayMS:  0,
			SkipExisting: true,
			Resume:       false,
		},
		TileMap: TileMapConfig{
			Format: "png",
			Schema: "xyz",
		},
	}
}
