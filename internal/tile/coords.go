// Package tile implements the Web-Mercator tile coordinate model: pure
// conversions between geographic coordinates and tile indices, tile
// validity, the XYZ/TMS row flip, and URL template substitution.
package tile

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// ZoomMin and ZoomMax bound the tile invariant 0 <= z <= 30.
const (
	ZoomMin = 0
	ZoomMax = 30
)

// Coords is a tile coordinate (z, x, y) in XYZ convention (north=0).
type Coords struct {
	Z uint32
	X uint32
	Y uint32
}

// NewCoords constructs a Coords value without validating it.
func NewCoords(z, x, y uint32) Coords {
	return Coords{Z: z, X: x, Y: y}
}

// String renders the coordinate as "z/x/y".
func (c Coords) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Z, c.X, c.Y)
}

// Path returns the filesystem-style path for this tile under a given
// extension, e.g. "3/4/2.png".
func (c Coords) Path(extension string) string {
	return fmt.Sprintf("%d/%d/%d.%s", c.Z, c.X, c.Y, extension)
}

// Valid reports whether the coordinate satisfies the tile invariants:
// 0 <= z <= 30 and 0 <= x, y < 2^z.
func (c Coords) Valid() bool {
	if c.Z > ZoomMax {
		return false
	}
	span := uint32(1) << c.Z
	return c.X < span && c.Y < span
}

// RowTMS returns the TMS row (south-origin) corresponding to this tile's
// XYZ row.
func (c Coords) RowTMS() uint32 {
	return FlipY(c.Y, c.Z)
}

// Tile returns the orb/maptile representation of this coordinate.
func (c Coords) Tile() maptile.Tile {
	return maptile.New(c.X, c.Y, maptile.Zoom(c.Z))
}

// Bounds returns the geographic bounding box of the tile in WGS84
// (lon_w, lat_s, lon_e, lat_n).
func (c Coords) Bounds() (lonW, latS, lonE, latN float64) {
	return TileBounds(c.X, c.Y, c.Z)
}

// Lon2Col computes the tile column containing a given longitude at zoom z.
func Lon2Col(lon float64, z uint32) int64 {
	n := math.Exp2(float64(z))
	return int64(math.Floor((lon + 180.0) / 360.0 * n))
}

// Lat2Row computes the tile row (XYZ, north-origin) containing a given
// latitude at zoom z.
func Lat2Row(lat float64, z uint32) int64 {
	n := math.Exp2(float64(z))
	latRad := lat * math.Pi / 180.0
	return int64(math.Floor((1.0 - math.Asinh(math.Tan(latRad))/math.Pi) / 2.0 * n))
}

// Col2Lon computes the western longitude edge of tile column x at zoom z.
func Col2Lon(x int64, z uint32) float64 {
	n := math.Exp2(float64(z))
	return float64(x)*360.0/n - 180.0
}

// Row2Lat computes the northern latitude edge of tile row y (XYZ) at zoom z.
func Row2Lat(y int64, z uint32) float64 {
	n := math.Exp2(float64(z))
	return math.Atan(math.Sinh(math.Pi-2.0*math.Pi*float64(y)/n)) * 180.0 / math.Pi
}

// TileBounds computes the geographic bounding box (lon_w, lat_s, lon_e,
// lat_n) of tile (x, y, z) in XYZ convention.
func TileBounds(x, y uint32, z uint32) (lonW, latS, lonE, latN float64) {
	lonW = Col2Lon(int64(x), z)
	lonE = Col2Lon(int64(x)+1, z)
	latN = Row2Lat(int64(y), z)
	latS = Row2Lat(int64(y)+1, z)
	return
}

// FlipY converts between XYZ and TMS row conventions; the operation is its
// own inverse: FlipY(FlipY(y, z), z) == y.
func FlipY(y, z uint32) uint32 {
	return uint32(1<<z) - 1 - y
}

// URLOf substitutes {z}, {x}, {y} and {-y} (the TMS row) into a URL
// template. No other placeholders are recognized.
func URLOf(template string, z, x, y uint32) string {
	r := strings.NewReplacer(
		"{z}", strconv.FormatUint(uint64(z), 10),
		"{x}", strconv.FormatUint(uint64(x), 10),
		"{y}", strconv.FormatUint(uint64(y), 10),
		"{-y}", strconv.FormatUint(uint64(FlipY(y, z)), 10),
	)
	return r.Replace(template)
}

// TileRange is an inclusive rectangular range of tile columns/rows at a
// single zoom level, used by the Layer Planner to project a mask
// polygon's bounding box onto the tile grid.
type TileRange struct {
	Z          uint32
	MinX, MaxX uint32
	MinY, MaxY uint32
}

// Count returns the number of tiles covered by the range.
func (r TileRange) Count() int64 {
	if r.MaxX < r.MinX || r.MaxY < r.MinY {
		return 0
	}
	return int64(r.MaxX-r.MinX+1) * int64(r.MaxY-r.MinY+1)
}

// ForEach invokes fn for every tile in the range, x outer / y inner, the
// deterministic order the Planner's enumerate operation requires.
func (r TileRange) ForEach(fn func(Coords)) {
	for x := r.MinX; x <= r.MaxX; x++ {
		for y := r.MinY; y <= r.MaxY; y++ {
			fn(NewCoords(r.Z, x, y))
		}
	}
}

// RangeFromBound projects a geographic bounding box onto the tile grid at
// zoom z, clamping to [0, 2^z).
func RangeFromBound(b orb.Bound, z uint32) TileRange {
	span := int64(1) << z
	clamp := func(v int64) uint32 {
		if v < 0 {
			return 0
		}
		if v >= span {
			return uint32(span - 1)
		}
		return uint32(v)
	}

	x0 := Lon2Col(b.Min.Lon(), z)
	x1 := Lon2Col(b.Max.Lon(), z)
	// Latitude decreases as row increases (XYZ), so min lat -> max row.
	y0 := Lat2Row(b.Max.Lat(), z)
	y1 := Lat2Row(b.Min.Lat(), z)

	minX, maxX := clamp(x0), clamp(x1)
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	minY, maxY := clamp(y0), clamp(y1)
	if minY > maxY {
		minY, maxY = maxY, minY
	}

	return TileRange{Z: z, MinX: minX, MaxX: maxX, MinY: minY, MaxY: maxY}
}
