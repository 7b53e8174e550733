package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yeleibo/tiledl/internal/archive"
	"github.com/yeleibo/tiledl/internal/tile"
)

// fakeArchive is a minimal in-memory archive.Archive for pipeline tests.
type fakeArchive struct {
	mu    sync.Mutex
	tiles map[tile.Coords][]byte
	fail  map[tile.Coords]bool
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{tiles: map[tile.Coords][]byte{}}
}

func (f *fakeArchive) Exists(c tile.Coords) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.tiles[c]
	return ok, nil
}

func (f *fakeArchive) Write(t archive.Tile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[t.Coords] {
		return archive.ErrAlreadyExists
	}
	f.tiles[t.Coords] = t.Data
	return nil
}

func (f *fakeArchive) WriteMetadata(archive.Metadata) error { return nil }
func (f *fakeArchive) Close() error                         { return nil }

// fakeProgress and fakeEvents record everything Run reports, guarded by
// a mutex since Run invokes them from concurrent worker goroutines.
type fakeProgress struct {
	mu              sync.Mutex
	downloaded      int64
	total           int64
	layerDownloaded int64
	layerTotal      int64
	marked          []tile.Coords
}

func (p *fakeProgress) RecordDownload(tile.Coords) (int64, int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.downloaded++
	return p.downloaded, p.total
}

func (p *fakeProgress) RecordLayerProgress(tile.Coords) (int64, int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.layerDownloaded++
	return p.layerDownloaded, p.layerTotal
}

func (p *fakeProgress) MarkDone(c tile.Coords) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marked = append(p.marked, c)
}

type fakeEvents struct {
	mu        sync.Mutex
	downloads int
	errors    []string
}

func (e *fakeEvents) TileDownloaded(tile.Coords, int, time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.downloads++
}
func (e *fakeEvents) ProgressUpdated(int64, int64)               {}
func (e *fakeEvents) LayerProgressUpdated(uint32, int64, int64)  {}
func (e *fakeEvents) ErrorOccurred(message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errors = append(e.errors, message)
}

type alwaysAdmit struct{}

func (alwaysAdmit) Admit(context.Context) bool { return true }

func TestRunFetchesAllTilesSuccessfully(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tile-bytes"))
	}))
	defer srv.Close()

	a := newFakeArchive()
	prog := &fakeProgress{total: 4, layerTotal: 4}
	ev := &fakeEvents{}

	queue := make(chan tile.Coords, 4)
	coords := []tile.Coords{{Z: 1, X: 0, Y: 0}, {Z: 1, X: 0, Y: 1}, {Z: 1, X: 1, Y: 0}, {Z: 1, X: 1, Y: 1}}
	for _, c := range coords {
		queue <- c
	}
	close(queue)

	p := New(4, 0)
	p.Run(context.Background(), queue, srv.URL+"/{z}/{x}/{y}.png", 1, a, prog, ev, alwaysAdmit{})

	if len(a.tiles) != 4 {
		t.Fatalf("got %d persisted tiles, want 4", len(a.tiles))
	}
	if ev.downloads != 4 {
		t.Errorf("got %d tileDownloaded events, want 4", ev.downloads)
	}
	if len(ev.errors) != 0 {
		t.Errorf("unexpected errors: %v", ev.errors)
	}
}

func TestRunReportsTransportFailureWithoutRetry(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := newFakeArchive()
	prog := &fakeProgress{total: 1, layerTotal: 1}
	ev := &fakeEvents{}

	queue := make(chan tile.Coords, 1)
	queue <- tile.Coords{Z: 1, X: 0, Y: 0}
	close(queue)

	p := New(1, 0)
	p.Run(context.Background(), queue, srv.URL+"/{z}/{x}/{y}.png", 1, a, prog, ev, alwaysAdmit{})

	if len(a.tiles) != 0 {
		t.Fatalf("failed fetch must not be persisted, got %d tiles", len(a.tiles))
	}
	if len(ev.errors) != 1 {
		t.Fatalf("got %d errorOccurred events, want 1", len(ev.errors))
	}
	if atomic.LoadInt64(&hits) != 1 {
		t.Errorf("got %d requests, want exactly 1 (no retries)", hits)
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	var inFlight, maxInFlight int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&inFlight, 1)
		for {
			cur := atomic.LoadInt64(&maxInFlight)
			if n <= cur || atomic.CompareAndSwapInt64(&maxInFlight, cur, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	a := newFakeArchive()
	prog := &fakeProgress{total: 8, layerTotal: 8}
	ev := &fakeEvents{}

	queue := make(chan tile.Coords, 8)
	for i := uint32(0); i < 8; i++ {
		queue <- tile.Coords{Z: 3, X: i, Y: 0}
	}
	close(queue)

	p := New(2, 0)
	p.Run(context.Background(), queue, srv.URL+"/{z}/{x}/{y}.png", 3, a, prog, ev, alwaysAdmit{})

	if maxInFlight > 2 {
		t.Errorf("observed %d concurrent requests, want <= 2 (Workers=2)", maxInFlight)
	}
	if len(a.tiles) != 8 {
		t.Fatalf("got %d persisted tiles, want 8", len(a.tiles))
	}
}

type stoppingAfter struct {
	n  int64
	at int64
}

func (s *stoppingAfter) Admit(context.Context) bool {
	return atomic.AddInt64(&s.n, 1) <= s.at
}

func TestRunStopsAdmittingButFinishesInFlight(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	a := newFakeArchive()
	prog := &fakeProgress{total: 10, layerTotal: 10}
	ev := &fakeEvents{}

	queue := make(chan tile.Coords, 10)
	for i := uint32(0); i < 10; i++ {
		queue <- tile.Coords{Z: 4, X: i, Y: 0}
	}
	close(queue)

	p := New(1, 0)
	ctrl := &stoppingAfter{at: 3}
	p.Run(context.Background(), queue, srv.URL+"/{z}/{x}/{y}.png", 4, a, prog, ev, ctrl)

	if len(a.tiles) >= 10 {
		t.Fatalf("expected fewer than 10 tiles persisted after admission stopped, got %d", len(a.tiles))
	}
	if len(a.tiles) == 0 {
		t.Fatal("expected at least the already-admitted tiles to complete")
	}
}
