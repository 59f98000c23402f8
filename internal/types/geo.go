package types

import (
	"encoding/json"
	"fmt"
)

// GeoPoint is a WGS84 coordinate pair in degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the point is inside the WGS84 coordinate ranges.
func (p GeoPoint) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// BoundingBox is a normalized west/south/east/north box in degrees.
// It marshals as the [west, south, east, north] array the UI consumes.
type BoundingBox struct {
	West  float64
	South float64
	East  float64
	North float64
}

func (b BoundingBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]float64{b.West, b.South, b.East, b.North})
}

func (b *BoundingBox) UnmarshalJSON(data []byte) error {
	var arr [4]float64
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("bounding box must be [west, south, east, north]: %w", err)
	}
	*b = BoundingBox{West: arr[0], South: arr[1], East: arr[2], North: arr[3]}
	b.Normalize()
	return nil
}

// Normalize swaps edges so that west < east and south < north.
func (b *BoundingBox) Normalize() {
	if b.West > b.East {
		b.West, b.East = b.East, b.West
	}
	if b.South > b.North {
		b.South, b.North = b.North, b.South
	}
}

// Contains reports whether p lies inside the box (edges inclusive).
func (b BoundingBox) Contains(p GeoPoint) bool {
	return p.Lon >= b.West && p.Lon <= b.East && p.Lat >= b.South && p.Lat <= b.North
}

// AreaDeg2 is the box area in square degrees.
func (b BoundingBox) AreaDeg2() float64 {
	return (b.East - b.West) * (b.North - b.South)
}

// Center is the geometric middle of the box.
func (b BoundingBox) Center() GeoPoint {
	return GeoPoint{Lat: (b.South + b.North) / 2, Lon: (b.West + b.East) / 2}
}

// Polygon is a closed outer ring (first vertex == last vertex). Holes and
// additional rings of multi-polygons are not represented.
type Polygon []GeoPoint

// Closed reports whether the ring is explicitly closed.
func (pg Polygon) Closed() bool {
	if len(pg) < 4 {
		return false
	}
	return pg[0] == pg[len(pg)-1]
}

// GeoJSON renders the ring as a GeoJSON Polygon geometry (lon/lat order).
func (pg Polygon) GeoJSON() *GeoJSONPolygon {
	if len(pg) == 0 {
		return nil
	}
	ring := make([][2]float64, len(pg))
	for i, p := range pg {
		ring[i] = [2]float64{p.Lon, p.Lat}
	}
	return &GeoJSONPolygon{Type: "Polygon", Coordinates: [][][2]float64{ring}}
}

// GeoJSONPolygon is the GeoJSON Polygon shape handed to the UI overlay.
type GeoJSONPolygon struct {
	Type        string         `json:"type"`
	Coordinates [][][2]float64 `json:"coordinates"`
}

// PathSegment is one named polyline extracted from the road/path index.
type PathSegment struct {
	ID     string
	Points []GeoPoint
}

// GeoJSON renders the segment as a GeoJSON LineString feature for the UI.
func (s PathSegment) GeoJSON() GeoJSONLine {
	coords := make([][2]float64, len(s.Points))
	for i, p := range s.Points {
		coords[i] = [2]float64{p.Lon, p.Lat}
	}
	return GeoJSONLine{ID: s.ID, Type: "LineString", Coordinates: coords}
}

// GeoJSONLine is a LineString with the source element id attached.
type GeoJSONLine struct {
	ID          string       `json:"id"`
	Type        string       `json:"type"`
	Coordinates [][2]float64 `json:"coordinates"`
}

// PathSet groups the per-query road/path context by how it can be used.
// Derived from upstream results, never persisted.
type PathSet struct {
	Walkable []PathSegment
	Drivable []PathSegment
}

// Empty reports whether nothing usable was found in the search box.
func (ps *PathSet) Empty() bool {
	return ps == nil || (len(ps.Walkable) == 0 && len(ps.Drivable) == 0)
}

// GeocodeResult is the normalized output of the geocoding provider. Provider
// specific fields never leak past the gateway boundary.
type GeocodeResult struct {
	DisplayName string      `json:"displayName"`
	Center      GeoPoint    `json:"center"`
	Box         BoundingBox `json:"bbox"`
	Footprint   Polygon     `json:"-"`
}
