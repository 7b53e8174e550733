package mask

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/yeleibo/tiledl/internal/tile"
)

func boundOf(lonW, latS, lonE, latN float64) orb.Bound {
	return orb.Bound{
		Min: orb.Point{lonW, latS},
		Max: orb.Point{lonE, latN},
	}
}

func TestEmptyMaskContainsEverything(t *testing.T) {
	var m Mask
	if !m.Empty() {
		t.Fatal("zero-value Mask should be empty")
	}
	if !m.ContainsTile(boundOf(170, 80, 180, 85)) {
		t.Fatal("empty Mask should contain every tile")
	}
}

func TestParseFeatureCollection(t *testing.T) {
	data := []byte(`{
		"type": "FeatureCollection",
		"features": [
			{"type": "Feature", "properties": {}, "geometry": {
				"type": "Polygon",
				"coordinates": [[[-10,-10],[10,-10],[10,10],[-10,10],[-10,-10]]]
			}}
		]
	}`)
	m, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(m.Polygons) != 1 {
		t.Fatalf("got %d polygons, want 1", len(m.Polygons))
	}
}

func TestParseBareGeometry(t *testing.T) {
	data := []byte(`{
		"type": "Polygon",
		"coordinates": [[[-10,-10],[10,-10],[10,10],[-10,10],[-10,-10]]]
	}`)
	m, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(m.Polygons) != 1 {
		t.Fatalf("got %d polygons, want 1", len(m.Polygons))
	}
}

func TestParseFeature(t *testing.T) {
	data := []byte(`{
		"type": "Feature",
		"properties": {},
		"geometry": {"type": "Polygon", "coordinates": [[[-1,-1],[1,-1],[1,1],[-1,1],[-1,-1]]]}
	}`)
	m, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(m.Polygons) != 1 {
		t.Fatalf("got %d polygons, want 1", len(m.Polygons))
	}
}

func TestParseNominatimArray(t *testing.T) {
	data := []byte(`[
		{"place_id": 1, "geojson": {"type": "Polygon", "coordinates": [[[-5,-5],[5,-5],[5,5],[-5,5],[-5,-5]]]}}
	]`)
	m, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(m.Polygons) != 1 {
		t.Fatalf("got %d polygons, want 1", len(m.Polygons))
	}
}

func TestParseMultiPolygon(t *testing.T) {
	data := []byte(`{
		"type": "MultiPolygon",
		"coordinates": [
			[[[-10,-10],[-5,-10],[-5,-5],[-10,-5],[-10,-10]]],
			[[[5,5],[10,5],[10,10],[5,10],[5,5]]]
		]
	}`)
	m, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(m.Polygons) != 2 {
		t.Fatalf("got %d polygons, want 2", len(m.Polygons))
	}
}

func TestParseIgnoresInnerRings(t *testing.T) {
	// A polygon with a hole: only the outer ring should be retained, so
	// the hole has no effect on the bounding box or polygon count.
	data := []byte(`{
		"type": "Polygon",
		"coordinates": [
			[[-10,-10],[10,-10],[10,10],[-10,10],[-10,-10]],
			[[-1,-1],[1,-1],[1,1],[-1,1],[-1,-1]]
		]
	}`)
	m, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(m.Polygons) != 1 {
		t.Fatalf("got %d polygons, want 1 (outer ring only)", len(m.Polygons))
	}
	if len(m.Polygons[0].Ring) != 5 {
		t.Fatalf("outer ring has %d points, want 5", len(m.Polygons[0].Ring))
	}
}

func TestParseInvalidJSON(t *testing.T) {
	if _, err := Parse([]byte("not json")); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

// TestContainsTileSmallSquareMask matches end-to-end scenario 2 from the
// specification: zoom=2, mask polygon [(-10,-10),(10,-10),(10,10),(-10,10)],
// expected candidate set {(2,1,1),(2,1,2),(2,2,1),(2,2,2)}.
func TestContainsTileSmallSquareMask(t *testing.T) {
	data := []byte(`{
		"type": "Polygon",
		"coordinates": [[[-10,-10],[10,-10],[10,10],[-10,10],[-10,-10]]]
	}`)
	m, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	zoom := uint32(2)
	var candidates []tile.Coords
	for x := uint32(0); x < 4; x++ {
		for y := uint32(0); y < 4; y++ {
			c := tile.NewCoords(zoom, x, y)
			lonW, latS, lonE, latN := c.Bounds()
			b := boundOf(lonW, latS, lonE, latN)
			if m.ContainsTile(b) {
				candidates = append(candidates, c)
			}
		}
	}

	want := map[tile.Coords]bool{
		{Z: 2, X: 1, Y: 1}: true,
		{Z: 2, X: 1, Y: 2}: true,
		{Z: 2, X: 2, Y: 1}: true,
		{Z: 2, X: 2, Y: 2}: true,
	}
	if len(candidates) != len(want) {
		t.Fatalf("got %d candidates, want %d: %v", len(candidates), len(want), candidates)
	}
	for _, c := range candidates {
		if !want[c] {
			t.Errorf("unexpected candidate %+v", c)
		}
	}
}
