package geo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// GeometryType tags which member of Geometry is populated.
type GeometryType string

const (
	GeometryUnknown      GeometryType = ""
	GeometryPoint        GeometryType = "Point"
	GeometryLineString   GeometryType = "LineString"
	GeometryPolygon      GeometryType = "Polygon"
	GeometryMultiPolygon GeometryType = "MultiPolygon"
)

// Geometry is a tagged variant over the GeoJSON geometries the incident
// feeds emit. Exactly one coordinate field is meaningful for a given Type.
type Geometry struct {
	Type         GeometryType
	Point        Position
	LineString   []Position
	Polygon      []Ring
	MultiPolygon [][]Ring
}

// First returns the first coordinate of the geometry: the point itself, the
// first vertex of a line, or the first vertex of the first outer ring.
func (g Geometry) First() (Position, bool) {
	switch g.Type {
	case GeometryPoint:
		return g.Point, true
	case GeometryLineString:
		if len(g.LineString) > 0 {
			return g.LineString[0], true
		}
	case GeometryPolygon:
		if len(g.Polygon) > 0 && len(g.Polygon[0]) > 0 {
			return g.Polygon[0][0], true
		}
	case GeometryMultiPolygon:
		for _, poly := range g.MultiPolygon {
			if len(poly) > 0 && len(poly[0]) > 0 {
				return poly[0][0], true
			}
		}
	}
	return Position{}, false
}

type rawGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// UnmarshalJSON decodes a GeoJSON geometry object. Unsupported types and
// malformed coordinates decode to GeometryUnknown rather than failing, so a
// single bad feature cannot poison a whole collection.
func (g *Geometry) UnmarshalJSON(data []byte) error {
	*g = Geometry{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	var raw rawGeometry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil //nolint:nilerr // bad geometry is excluded, not fatal
	}

	var err error
	switch GeometryType(raw.Type) {
	case GeometryPoint:
		err = json.Unmarshal(raw.Coordinates, &g.Point)
	case GeometryLineString:
		err = json.Unmarshal(raw.Coordinates, &g.LineString)
	case GeometryPolygon:
		err = json.Unmarshal(raw.Coordinates, &g.Polygon)
	case GeometryMultiPolygon:
		err = json.Unmarshal(raw.Coordinates, &g.MultiPolygon)
	default:
		return nil
	}
	if err != nil {
		*g = Geometry{}
		return nil
	}
	g.Type = GeometryType(raw.Type)
	return nil
}

// MarshalJSON encodes the geometry back to GeoJSON.
func (g Geometry) MarshalJSON() ([]byte, error) {
	var coords any
	switch g.Type {
	case GeometryPoint:
		coords = g.Point
	case GeometryLineString:
		coords = g.LineString
	case GeometryPolygon:
		coords = g.Polygon
	case GeometryMultiPolygon:
		coords = g.MultiPolygon
	default:
		return []byte("null"), nil
	}
	return json.Marshal(rawGeometryOut{Type: string(g.Type), Coordinates: coords})
}

type rawGeometryOut struct {
	Type        string `json:"type"`
	Coordinates any    `json:"coordinates"`
}

// UnmarshalJSON accepts positions with an optional altitude component, which
// is discarded.
func (p *Position) UnmarshalJSON(data []byte) error {
	var vals []float64
	if err := json.Unmarshal(data, &vals); err != nil {
		return fmt.Errorf("decode position: %w", err)
	}
	if len(vals) < 2 {
		return fmt.Errorf("decode position: want at least 2 values, got %d", len(vals))
	}
	p[0], p[1] = vals[0], vals[1]
	return nil
}

// Feature is a single GeoJSON feature. Properties are kept raw; callers pick
// the fields they understand.
type Feature struct {
	ID         string                     `json:"-"`
	Properties map[string]json.RawMessage `json:"properties"`
	Geometry   Geometry                   `json:"geometry"`
}

type rawFeature struct {
	ID         json.RawMessage            `json:"id"`
	Properties map[string]json.RawMessage `json:"properties"`
	Geometry   Geometry                   `json:"geometry"`
}

// UnmarshalJSON decodes a feature, normalising a string or numeric
// top-level id into Feature.ID.
func (f *Feature) UnmarshalJSON(data []byte) error {
	var raw rawFeature
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode feature: %w", err)
	}
	f.ID = ScalarString(raw.ID)
	f.Properties = raw.Properties
	f.Geometry = raw.Geometry
	return nil
}

// FeatureCollection is the top-level GeoJSON document served by the
// official incident feeds.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// UnmarshalJSON decodes the collection, dropping individual features that
// fail to decode.
func (fc *FeatureCollection) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode feature collection: %w", err)
	}
	fc.Type = raw.Type
	fc.Features = make([]Feature, 0, len(raw.Features))
	for _, rf := range raw.Features {
		var f Feature
		if err := json.Unmarshal(rf, &f); err != nil {
			continue
		}
		fc.Features = append(fc.Features, f)
	}
	return nil
}

// FeatureDistance returns the distance in meters from (lat, lon) to the
// feature. Points and lines are measured to their first coordinate;
// polygons use the containment-aware distance. Empty or unknown geometry is
// infinitely far away.
func FeatureDistance(f Feature, lat, lon float64) float64 {
	g := f.Geometry
	switch g.Type {
	case GeometryPoint, GeometryLineString:
		p, ok := g.First()
		if !ok {
			return math.Inf(1)
		}
		return DistanceMeters(lat, lon, p.Lat(), p.Lon())
	case GeometryPolygon:
		return DistanceToPolygon(lat, lon, g.Polygon)
	case GeometryMultiPolygon:
		return DistanceToMultiPolygon(lat, lon, g.MultiPolygon)
	default:
		return math.Inf(1)
	}
}

// ScalarString renders a raw JSON string or number as a plain string.
// Anything else (objects, arrays, null, empty strings) yields "".
func ScalarString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return ""
		}
		if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	default:
		return ""
	}
}
