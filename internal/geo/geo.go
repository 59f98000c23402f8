// Package geo is the pure geometry kernel. Every operation is deterministic,
// allocation-light and O(n) in vertex count, so callers run them on every
// request without caching.
package geo

import (
	"math"

	"github.com/doorwayhq/doorway-api/internal/types"
)

// EarthRadiusMeters is the fixed sphere radius used for all conversions.
const EarthRadiusMeters = 6371000.0

// Distance returns the haversine great-circle distance between a and b in
// meters. Symmetric, and zero iff a == b.
func Distance(a, b types.GeoPoint) float64 {
	phi1 := radians(a.Lat)
	phi2 := radians(b.Lat)
	dPhi := phi2 - phi1
	dLambda := radians(b.Lon - a.Lon)

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(math.Max(0, 1-h)))
	return EarthRadiusMeters * c
}

// ChainProjection is the closest point found on a polyline and its
// great-circle distance to the query point.
type ChainProjection struct {
	Point    types.GeoPoint
	Distance float64
}

// NearestPointOnChain projects p onto every consecutive segment of the
// polyline using a planar lon/lat approximation, clamps the parametric t to
// [0,1], and scores candidates by true great-circle distance. Zero-length
// segments degrade to their start vertex. ok is false for an empty chain.
func NearestPointOnChain(p types.GeoPoint, chain []types.GeoPoint) (ChainProjection, bool) {
	if len(chain) == 0 {
		return ChainProjection{}, false
	}
	best := ChainProjection{Point: chain[0], Distance: Distance(p, chain[0])}
	for i := 0; i+1 < len(chain); i++ {
		candidate := projectOnSegment(p, chain[i], chain[i+1])
		d := Distance(p, candidate)
		if d < best.Distance {
			best = ChainProjection{Point: candidate, Distance: d}
		}
	}
	return best, true
}

func projectOnSegment(p, a, b types.GeoPoint) types.GeoPoint {
	dx := b.Lon - a.Lon
	dy := b.Lat - a.Lat
	lenSq := dx*dx + dy*dy
	t := 0.0
	if lenSq > 0 {
		t = ((p.Lon-a.Lon)*dx + (p.Lat-a.Lat)*dy) / lenSq
		t = math.Max(0, math.Min(1, t))
	}
	return types.GeoPoint{Lat: a.Lat + t*dy, Lon: a.Lon + t*dx}
}

// Centroid returns the signed-area (shoelace) centroid of the outer ring.
// ok is false when the ring encloses no area.
func Centroid(pg types.Polygon) (types.GeoPoint, bool) {
	if len(pg) < 3 {
		return types.GeoPoint{}, false
	}
	ring := pg
	if !pg.Closed() && len(pg) >= 3 {
		ring = append(append(types.Polygon{}, pg...), pg[0])
	}
	var area, cx, cy float64
	for i := 0; i+1 < len(ring); i++ {
		cross := ring[i].Lon*ring[i+1].Lat - ring[i+1].Lon*ring[i].Lat
		area += cross
		cx += (ring[i].Lon + ring[i+1].Lon) * cross
		cy += (ring[i].Lat + ring[i+1].Lat) * cross
	}
	area /= 2
	if area == 0 {
		return types.GeoPoint{}, false
	}
	return types.GeoPoint{Lat: cy / (6 * area), Lon: cx / (6 * area)}, true
}

// BoxAround expands center by radiusMeters in each direction. The longitude
// delta is corrected by 1/cos(lat) so the box stays roughly square on the
// ground away from the equator.
func BoxAround(center types.GeoPoint, radiusMeters float64) types.BoundingBox {
	dLat := degrees(radiusMeters / EarthRadiusMeters)
	cosLat := math.Cos(radians(center.Lat))
	if cosLat < 1e-6 {
		cosLat = 1e-6
	}
	dLon := dLat / cosLat

	box := types.BoundingBox{
		West:  center.Lon - dLon,
		South: math.Max(-90, center.Lat-dLat),
		East:  center.Lon + dLon,
		North: math.Min(90, center.Lat+dLat),
	}
	box.Normalize()
	return box
}

// SyntheticBoxPolygon builds the closed ring of BoxAround, used as a stand-in
// footprint when the geocoder returned no polygon geometry.
func SyntheticBoxPolygon(center types.GeoPoint, radiusMeters float64) types.Polygon {
	b := BoxAround(center, radiusMeters)
	return types.Polygon{
		{Lat: b.South, Lon: b.West},
		{Lat: b.South, Lon: b.East},
		{Lat: b.North, Lon: b.East},
		{Lat: b.North, Lon: b.West},
		{Lat: b.South, Lon: b.West},
	}
}

// ClampToBoundary returns the nearest point on the polygon's boundary to p.
// Points already on the boundary come back unchanged; a nil or degenerate
// polygon leaves p untouched.
func ClampToBoundary(p types.GeoPoint, pg types.Polygon) types.GeoPoint {
	if len(pg) < 2 {
		return p
	}
	proj, ok := NearestPointOnChain(p, pg)
	if !ok {
		return p
	}
	return proj.Point
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }
