package progressui

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestBarUpdate(t *testing.T) {
	b := New(false)

	b.Update(5, 10)

	if b.current != 5 {
		t.Errorf("current = %d, want 5", b.current)
	}
	if b.total != 10 {
		t.Errorf("total = %d, want 10", b.total)
	}
}

func TestBarPrint(t *testing.T) {
	var buf bytes.Buffer

	b := New(true)
	b.output = &buf
	b.startTime = time.Now().Add(-10 * time.Second)

	b.Update(5, 10)
	output := buf.String()

	if !strings.Contains(output, "█") {
		t.Error("expected progress bar fill character in output")
	}
	if !strings.Contains(output, "5/10 tiles") {
		t.Errorf("expected '5/10 tiles' in output, got: %s", output)
	}
	if !strings.Contains(output, "tiles/sec") {
		t.Errorf("expected 'tiles/sec' in output, got: %s", output)
	}
	if !strings.Contains(output, "ETA:") {
		t.Errorf("expected 'ETA:' in output, got: %s", output)
	}
}

func TestBarDone(t *testing.T) {
	var buf bytes.Buffer

	b := New(true)
	b.output = &buf
	b.startTime = time.Now().Add(-3 * time.Second)

	b.Update(3, 3)
	buf.Reset()

	b.Done()
	output := buf.String()

	if !strings.Contains(output, "Done in") {
		t.Errorf("expected 'Done in' in output, got: %s", output)
	}
	if !strings.HasSuffix(output, "\n") {
		t.Error("expected output to end with newline")
	}
}

func TestBarSummary(t *testing.T) {
	b := New(false)
	b.startTime = time.Now().Add(-10 * time.Second)

	b.Update(10, 10)
	summary := b.Summary()

	if !strings.Contains(summary, "10/10 tiles") {
		t.Errorf("expected '10/10 tiles' in summary, got: %s", summary)
	}
}

func TestBarDisabled(t *testing.T) {
	var buf bytes.Buffer

	b := New(false)
	b.output = &buf

	b.Update(5, 10)

	if buf.Len() != 0 {
		t.Errorf("expected no output when disabled, got: %s", buf.String())
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		expected string
		duration time.Duration
	}{
		{duration: 30 * time.Second, expected: "30s"},
		{duration: 90 * time.Second, expected: "1m30s"},
		{duration: 5 * time.Minute, expected: "5m0s"},
		{duration: 65 * time.Minute, expected: "1h5m"},
		{duration: 2*time.Hour + 30*time.Minute, expected: "2h30m"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := formatDuration(tt.duration)
			if result != tt.expected {
				t.Errorf("formatDuration(%v) = %s, want %s", tt.duration, result, tt.expected)
			}
		})
	}
}
