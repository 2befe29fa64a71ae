package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"time"
)

// AlertRecord is one hazard shown to riders. ClusterID is its identity:
// two records with the same ClusterID are the same alert at possibly
// different freshness.
type AlertRecord struct {
	ClusterID    string            `json:"clusterId"`
	IncidentType string            `json:"incidentType"`
	Severity     *string           `json:"severity,omitempty"`
	ExpiresAt    int64             `json:"expiresAt"` // epoch seconds
	Lat          *float64          `json:"lat,omitempty"`
	Lon          *float64          `json:"lon,omitempty"`
	Ackable      bool              `json:"ackable"`
	Description  string            `json:"description,omitempty"`
	Address      string            `json:"address,omitempty"`
	Source       string            `json:"source,omitempty"`
	Meta         SourceMeta        `json:"sourceMeta,omitempty"`
}

// SourceMeta carries free-form provenance from the producing feed. Decoding
// keeps string values as-is, stores any other value as its compact JSON
// text, and drops nulls.
type SourceMeta map[string]string

func (m *SourceMeta) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = nil
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("sourceMeta: %w", err)
	}
	out := make(SourceMeta, len(raw))
	for k, v := range raw {
		if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, v); err != nil {
			return fmt.Errorf("sourceMeta %s: %w", k, err)
		}
		out[k] = compact.String()
	}
	*m = out
	return nil
}

// Clone returns a copy sharing no memory with a.
func (a AlertRecord) Clone() AlertRecord {
	if a.Severity != nil {
		a.Severity = StringPtr(*a.Severity)
	}
	if a.Lat != nil {
		a.Lat = Float64Ptr(*a.Lat)
	}
	if a.Lon != nil {
		a.Lon = Float64Ptr(*a.Lon)
	}
	a.Meta = maps.Clone(a.Meta)
	return a
}

// ExpiresAfter reports whether the alert is still live strictly after now.
func (a AlertRecord) ExpiresAfter(now time.Time) bool {
	return a.ExpiresAt > now.Unix()
}

// TTL returns the remaining lifetime relative to now, or 0 once expired.
func (a AlertRecord) TTL(now time.Time) time.Duration {
	left := time.Duration(a.ExpiresAt-now.Unix()) * time.Second
	if left < 0 {
		return 0
	}
	return left
}

// Snapshot is the single artifact published by one aggregation cycle.
// A new cycle produces a new Snapshot; published snapshots are never
// mutated.
type Snapshot struct {
	ID        string        `json:"id"`
	Alerts    []AlertRecord `json:"alerts"`
	Total     int           `json:"total"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	if s.Alerts == nil {
		return s
	}
	alerts := make([]AlertRecord, len(s.Alerts))
	for i, a := range s.Alerts {
		alerts[i] = a.Clone()
	}
	s.Alerts = alerts
	return s
}

// Coordinates is a best-known rider position.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the coordinates are finite and on the globe.
func (c Coordinates) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// CellID buckets a coordinate into a ~100 m grid cell by flooring both
// components to three decimals, e.g. "-37.814_144.963".
func CellID(lat, lon float64) string {
	return fmt.Sprintf("%.3f_%.3f", floor3(lat), floor3(lon))
}

// WeatherClusterID is the ClusterID of the weather-derived alert for the
// cell containing (lat, lon).
func WeatherClusterID(lat, lon float64) string {
	return "weather#" + CellID(lat, lon)
}

func floor3(v float64) float64 {
	// Nudge by a tiny epsilon so values like 0.123 that are stored as
	// 0.12299999 still land in their own cell.
	return math.Floor(v*1000+1e-9) / 1000
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }

// Float64Ptr returns a pointer to f.
func Float64Ptr(f float64) *float64 { return &f }
