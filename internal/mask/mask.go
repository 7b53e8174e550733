// Package mask loads GeoJSON geometry into an ordered collection of
// polygons and tests tile-vs-mask intersection by bounding box. Only the
// outer ring of each polygon is retained; inner rings (holes) are
// ignored, matching the behavior of the source this was ported from. That
// is an open question, not a bug: see DESIGN.md.
package mask

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Polygon is a single outer ring plus its precomputed bounding box.
type Polygon struct {
	Ring  orb.Ring
	Bound orb.Bound
}

// Mask is an ordered collection of polygons derived from a GeoJSON
// source, plus their union bounding box. A Mask with no polygons is
// unbounded: every tile is a candidate.
type Mask struct {
	Polygons []Polygon
	Bound    orb.Bound
}

// Empty reports whether the mask has no polygons, i.e. is unbounded.
func (m Mask) Empty() bool {
	return len(m.Polygons) == 0
}

// ContainsTile reports whether a tile's geographic bounding box
// (tileBound) intersects any polygon's bounding box. This is a deliberate
// over-approximation: a full bbox test, not a polygon-vs-polygon test. It
// may include tiles outside the true mask but never excludes tiles
// inside it. An empty mask returns true for every tile.
func (m Mask) ContainsTile(tileBound orb.Bound) bool {
	if m.Empty() {
		return true
	}
	for _, p := range m.Polygons {
		if boundsIntersect(p.Bound, tileBound) {
			return true
		}
	}
	return false
}

func boundsIntersect(a, b orb.Bound) bool {
	if a.Max.Lon() < b.Min.Lon() || b.Max.Lon() < a.Min.Lon() {
		return false
	}
	if a.Max.Lat() < b.Min.Lat() || b.Max.Lat() < a.Min.Lat() {
		return false
	}
	return true
}

// Load reads and parses a GeoJSON mask file. A parse or I/O failure is
// returned to the caller, who may choose (per the core's error handling
// design) to treat it as non-fatal and fall back to an empty Mask so the
// task still runs unbounded.
func Load(path string) (Mask, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Mask{}, fmt.Errorf("mask: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse accepts a FeatureCollection, a single Feature, a bare Geometry,
// or a Nominatim-style array of objects each carrying a "geojson" key,
// and returns the polygons found within.
func Parse(data []byte) (Mask, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err == nil && probe.Type != "" {
		switch probe.Type {
		case "FeatureCollection":
			fc, err := geojson.UnmarshalFeatureCollection(data)
			if err != nil {
				return Mask{}, fmt.Errorf("mask: parse feature collection: %w", err)
			}
			return fromGeometries(geometriesOf(fc)), nil
		case "Feature":
			f, err := geojson.UnmarshalFeature(data)
			if err != nil {
				return Mask{}, fmt.Errorf("mask: parse feature: %w", err)
			}
			if f.Geometry == nil {
				return Mask{}, nil
			}
			return fromGeometries([]orb.Geometry{f.Geometry}), nil
		default:
			g, err := geojson.UnmarshalGeometry(data)
			if err != nil {
				return Mask{}, fmt.Errorf("mask: parse geometry: %w", err)
			}
			return fromGeometries([]orb.Geometry{g.Geometry()}), nil
		}
	}

	// Nominatim-style: a bare JSON array of objects each carrying a
	// "geojson" member holding a Geometry object.
	var items []struct {
		GeoJSON json.RawMessage `json:"geojson"`
	}
	if err := json.Unmarshal(data, &items); err != nil {
		return Mask{}, fmt.Errorf("mask: unrecognized GeoJSON shape: %w", err)
	}
	var geoms []orb.Geometry
	for _, item := range items {
		if len(item.GeoJSON) == 0 {
			continue
		}
		g, err := geojson.UnmarshalGeometry(item.GeoJSON)
		if err != nil {
			continue
		}
		geoms = append(geoms, g.Geometry())
	}
	return fromGeometries(geoms), nil
}

func geometriesOf(fc *geojson.FeatureCollection) []orb.Geometry {
	geoms := make([]orb.Geometry, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f.Geometry != nil {
			geoms = append(geoms, f.Geometry)
		}
	}
	return geoms
}

// fromGeometries extracts outer rings from Polygon and MultiPolygon
// geometries only, mirroring the source's handling of exactly those two
// types; other geometry types (Point, LineString, ...) contribute no
// polygon and are silently skipped, as a mask over them is meaningless.
func fromGeometries(geoms []orb.Geometry) Mask {
	var m Mask
	first := true
	for _, g := range geoms {
		switch t := g.(type) {
		case orb.Polygon:
			addRing(&m, outerRing(t), &first)
		case orb.MultiPolygon:
			for _, poly := range t {
				addRing(&m, outerRing(poly), &first)
			}
		}
	}
	return m
}

func outerRing(p orb.Polygon) orb.Ring {
	if len(p) == 0 {
		return nil
	}
	return p[0]
}

func addRing(m *Mask, ring orb.Ring, first *bool) {
	if len(ring) == 0 {
		return
	}
	b := ring.Bound()
	m.Polygons = append(m.Polygons, Polygon{Ring: ring, Bound: b})
	if *first {
		m.Bound = b
		*first = false
	} else {
		m.Bound = m.Bound.Union(b)
	}
}
