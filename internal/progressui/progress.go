// Package progressui renders a terminal progress bar driven by task
// events, adapted from the tile-generation progress tracker this module
// started from.
package progressui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Bar tracks and displays download progress for one task run.
type Bar struct {
	startTime time.Time
	output    io.Writer
	total     int64
	current   int64
	mu        sync.RWMutex
	enabled   bool
}

// New creates a Bar. When enabled is false, Update still records the
// progress pair but Update and Done print nothing, so a caller can wire
// the same callbacks unconditionally for a non-interactive run.
func New(enabled bool) *Bar {
	return &Bar{
		startTime: time.Now(),
		output:    os.Stderr,
		enabled:   enabled,
	}
}

// Update records the latest (current, total) progress pair and redraws
// the bar if enabled.
func (b *Bar) Update(current, total int64) {
	b.mu.Lock()
	b.current = current
	b.total = total
	b.mu.Unlock()

	if b.enabled {
		b.Print()
	}
}

// Print renders the current progress line to output.
func (b *Bar) Print() {
	b.mu.RLock()
	current := b.current
	total := b.total
	startTime := b.startTime
	b.mu.RUnlock()

	elapsed := time.Since(startTime)

	var rate float64
	var eta time.Duration
	if current > 0 {
		rate = float64(current) / elapsed.Seconds()
		remaining := total - current
		if rate > 0 {
			eta = time.Duration(float64(remaining)/rate) * time.Second
		}
	}

	const barWidth = 30
	var progress float64
	if total > 0 {
		progress = float64(current) / float64(total)
	}
	filled := int(progress * float64(barWidth))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	line := fmt.Sprintf("\r[%s] %d/%d tiles", bar, current, total)
	line += fmt.Sprintf(" - %.1f tiles/sec", rate)
	if eta > 0 && current < total {
		line += fmt.Sprintf(" - ETA: %s", formatDuration(eta))
	}
	if total > 0 && current >= total {
		line += fmt.Sprintf(" - Done in %s", formatDuration(elapsed))
	}
	line += "          "

	fmt.Fprint(b.output, line)
}

// Done prints the final progress line and a trailing newline.
func (b *Bar) Done() {
	if b.enabled {
		b.Print()
		fmt.Fprintln(b.output)
	}
}

// Summary returns a human-readable recap of the completed run.
func (b *Bar) Summary() string {
	b.mu.RLock()
	current := b.current
	total := b.total
	startTime := b.startTime
	b.mu.RUnlock()

	elapsed := time.Since(startTime)
	var rate float64
	if elapsed.Seconds() > 0 {
		rate = float64(current) / elapsed.Seconds()
	}
	return fmt.Sprintf("downloaded %d/%d tiles in %s (%.1f tiles/sec)",
		current, total, formatDuration(elapsed), rate)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		secs := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", mins, secs)
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", hours, mins)
}
