// Package geo provides the small set of geometric primitives needed to
// geofence hazard feeds and match historical incidents: great-circle
// distance, planar point-in-polygon, and vertex-based distances to rings and
// (multi)polygons.
//
// Positions follow GeoJSON ordering: [longitude, latitude]. Function
// arguments follow the human ordering: (lat, lon).
//
// Containment treats rings as planar. That is only valid at the
// sub-kilometer radii this service geofences with; do not reuse these
// helpers for continental-scale polygons.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
const EarthRadiusMeters = 6_371_000.0

// Position is a GeoJSON coordinate pair in [lon, lat] order.
type Position [2]float64

// Lon returns the longitude component.
func (p Position) Lon() float64 { return p[0] }

// Lat returns the latitude component.
func (p Position) Lat() float64 { return p[1] }

// Valid reports whether both components are finite numbers.
func (p Position) Valid() bool {
	return isFinite(p[0]) && isFinite(p[1])
}

// Ring is an ordered list of positions. The closing vertex may or may not
// repeat the first one.
type Ring []Position

// DistanceMeters returns the haversine distance between two points.
// Non-finite input yields +Inf so callers filtering by radius drop it.
func DistanceMeters(latA, lonA, latB, lonB float64) float64 {
	if !isFinite(latA) || !isFinite(lonA) || !isFinite(latB) || !isFinite(lonB) {
		return math.Inf(1)
	}

	phiA := latA * math.Pi / 180
	phiB := latB * math.Pi / 180
	dPhi := (latB - latA) * math.Pi / 180
	dLambda := (lonB - lonA) * math.Pi / 180

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)
	a := sinPhi*sinPhi + math.Cos(phiA)*math.Cos(phiB)*sinLambda*sinLambda
	// Rounding can push a marginally above 1 for antipodal points.
	a = math.Min(1, a)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// PointInPolygon runs the even-odd ray casting test of (lat, lon) against
// ring. Rings with fewer than three vertices contain nothing.
func PointInPolygon(lat, lon float64, ring Ring) bool {
	if len(ring) < 3 || !isFinite(lat) || !isFinite(lon) {
		return false
	}

	inside := false
	for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
		xi, yi := ring[i].Lon(), ring[i].Lat()
		xj, yj := ring[j].Lon(), ring[j].Lat()
		if !ring[i].Valid() || !ring[j].Valid() {
			continue
		}
		if (yi > lat) != (yj > lat) {
			xCross := (xj-xi)*(lat-yi)/(yj-yi) + xi
			if lon < xCross {
				inside = !inside
			}
		}
	}
	return inside
}

// DistanceToRing returns the distance from (lat, lon) to the nearest vertex
// of ring. It is a vertex approximation, not a true edge distance, and is
// only accurate for the short radii used by the geofence.
func DistanceToRing(lat, lon float64, ring Ring) float64 {
	best := math.Inf(1)
	for _, p := range ring {
		if d := DistanceMeters(lat, lon, p.Lat(), p.Lon()); d < best {
			best = d
		}
	}
	return best
}

// DistanceToPolygon returns 0 when (lat, lon) lies inside the outer ring and
// the vertex distance to the outer ring otherwise. Holes are ignored.
func DistanceToPolygon(lat, lon float64, rings []Ring) float64 {
	if len(rings) == 0 {
		return math.Inf(1)
	}
	outer := rings[0]
	if PointInPolygon(lat, lon, outer) {
		return 0
	}
	return DistanceToRing(lat, lon, outer)
}

// DistanceToMultiPolygon returns the smallest DistanceToPolygon over all
// member polygons, or +Inf when there are none.
func DistanceToMultiPolygon(lat, lon float64, polygons [][]Ring) float64 {
	best := math.Inf(1)
	for _, poly := range polygons {
		if d := DistanceToPolygon(lat, lon, poly); d < best {
			best = d
		}
	}
	return best
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
