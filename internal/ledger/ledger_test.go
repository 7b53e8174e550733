package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yeleibo/tiledl/internal/tile"
)

func TestMarkAndIsDone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "task.progress.db")
	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	c := tile.NewCoords(2, 1, 1)
	if done, _ := l.IsDone(c); done {
		t.Fatal("tile should not be done before Mark")
	}
	require.NoError(t, l.Mark(c))

	done, err := l.IsDone(c)
	require.NoError(t, err)
	if !done {
		t.Fatal("expected IsDone to be true after Mark")
	}
}

func TestMarkIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "task.progress.db")
	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	c := tile.NewCoords(1, 0, 0)
	require.NoError(t, l.Mark(c))
	require.NoError(t, l.Mark(c), "second Mark should be ignored, not errored")

	n, err := l.Count()
	require.NoError(t, err)
	if n != 1 {
		t.Errorf("Count() = %d, want 1 (duplicate mark must not double-count)", n)
	}
}

func TestRemoveDeletesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "task.progress.db")
	l, err := Open(path)
	require.NoError(t, err)
	l.Close()

	require.NoError(t, Remove(path))
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("ledger file should be gone after Remove")
	}
}

func TestRemoveNonexistentIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.progress.db")
	require.NoError(t, Remove(path), "Remove on missing file should be a no-op")
}
