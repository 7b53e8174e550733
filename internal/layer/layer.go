// Package layer implements the Layer Planner: given a zoom level and a
// geographic mask, it estimates the candidate tile count and enumerates
// the candidate tiles themselves, grounded on the source's Layer
// calculateTileCount/containsTile pair.
package layer

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/yeleibo/tiledl/internal/mask"
	"github.com/yeleibo/tiledl/internal/tile"
)

// Layer is (zoom, url_override?, mask). It is built by the Coordinator
// from configuration at task start, consumed by the Planner, and
// discarded when the layer completes.
type Layer struct {
	Zoom        uint32
	URLOverride string
	Mask        mask.Mask
}

// Estimate returns an upper-bound tile count for the layer, computed
// before any I/O, used to seed progress. For an empty mask this is
// 2^(2*zoom); otherwise it sums each polygon's bounding-box tile-range
// size, clamped to the grid. Overlapping polygon boxes are counted
// multiply — the estimate is an upper bound, not a precise union.
func Estimate(l Layer) int64 {
	if l.Mask.Empty() {
		span := int64(1) << l.Zoom
		return span * span
	}

	var total int64
	for _, p := range l.Mask.Polygons {
		r := tile.RangeFromBound(p.Bound, l.Zoom)
		total += r.Count()
	}
	return total
}

// Enumerate streams every (z, x, y) with 0 <= x, y < 2^z such that
// mask.ContainsTile holds, in deterministic x-outer/y-inner order. The
// returned channel is closed when enumeration completes or ctx is
// canceled; callers must drain it (or cancel ctx) to avoid leaking the
// enumerating goroutine.
func Enumerate(ctx context.Context, l Layer) <-chan tile.Coords {
	out := make(chan tile.Coords)
	go func() {
		defer close(out)
		span := uint32(1) << l.Zoom
		for x := uint32(0); x < span; x++ {
			for y := uint32(0); y < span; y++ {
				c := tile.NewCoords(l.Zoom, x, y)
				lonW, latS, lonE, latN := c.Bounds()
				b := orb.Bound{Min: orb.Point{lonW, latS}, Max: orb.Point{lonE, latN}}
				if !l.Mask.ContainsTile(b) {
					continue
				}
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
