package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/yeleibo/tiledl/internal/metrics"
	"github.com/yeleibo/tiledl/internal/tile"
)

// Filesystem is the directory-hierarchy Archive variant described by the
// specification's TileArchive FilesystemVariant:
// <root>/<z>/<x>/<y>.<format>, with y stored as XYZ (not TMS).
type Filesystem struct {
	mu     sync.Mutex
	root   string
	format string
}

// OpenFilesystem prepares a filesystem archive rooted at
// <outputDir>/<taskName>. When skipExisting is false and the root
// directory already exists, its contents are removed so the task starts
// from a clean directory; when true, it is reused and augmented.
func OpenFilesystem(outputDir, taskName, format string, skipExisting bool) (*Filesystem, error) {
	root := filepath.Join(outputDir, taskName)
	if !skipExisting {
		if err := os.RemoveAll(root); err != nil {
			return nil, fmt.Errorf("archive: clear existing directory %s: %w", root, err)
		}
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("archive: create root %s: %w", root, err)
	}
	return &Filesystem{root: root, format: format}, nil
}

func (a *Filesystem) path(c tile.Coords) string {
	return filepath.Join(a.root, c.Path(a.format))
}

// Exists stats the target path.
func (a *Filesystem) Exists(c tile.Coords) (bool, error) {
	_, err := os.Stat(a.path(c))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("archive: stat %s: %w", a.path(c), err)
}

// Write creates parent directories as needed and writes the tile bytes
// to <root>/<z>/<x>/<y>.<format>.
func (a *Filesystem) Write(t Tile) error {
	start := time.Now()
	defer func() { metrics.RecordArchiveWrite(time.Since(start)) }()

	a.mu.Lock()
	defer a.mu.Unlock()

	p := a.path(t.Coords)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("archive: mkdir for %s: %w", p, err)
	}
	if err := os.WriteFile(p, t.Data, 0o644); err != nil {
		return fmt.Errorf("archive: write %s: %w", p, err)
	}
	return nil
}

// WriteMetadata is a no-op for the filesystem variant; there is no
// archive-level metadata surface on a plain directory tree.
func (a *Filesystem) WriteMetadata(Metadata) error {
	return nil
}

// Close is a no-op; the filesystem variant holds no handle to release.
func (a *Filesystem) Close() error {
	return nil
}

func removeIfExists(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return os.Remove(path)
}
