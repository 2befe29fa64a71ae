package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Context is the spatio-temporal query scored against the historical
// dataset. It is an immutable value built per query.
type Context struct {
	Lat       float64
	Lon       float64
	Hour      int // 0-23
	Month     int // 1-12
	DayOfWeek int // 0-6, Sunday = 0
	Weather   *AtmosphereCode
	Surface   *SurfaceCode
}

// NewContext derives hour, month, and weekday from t in t's location.
func NewContext(lat, lon float64, t time.Time) Context {
	return Context{
		Lat:       lat,
		Lon:       lon,
		Hour:      t.Hour(),
		Month:     int(t.Month()),
		DayOfWeek: int(t.Weekday()),
	}
}

// WithWeather returns a copy of c with the atmosphere code set.
func (c Context) WithWeather(code *AtmosphereCode) Context {
	c.Weather = code
	return c
}

// WithSurface returns a copy of c with the road-surface code set.
func (c Context) WithSurface(code *SurfaceCode) Context {
	c.Surface = code
	return c
}

// HistoricalRecord is one past incident. Atmosphere and surface conditions
// are stored in side tables keyed by ID and joined at scoring time.
type HistoricalRecord struct {
	ID        string
	Lat       float64
	Lon       float64
	Hour      int
	Month     int
	DayOfWeek int
}

// Condition is one side-table row joining a record ID to a condition code.
type Condition struct {
	RecordID string
	Code     int
}

// RiskLevel is a discrete risk category. Levels are totally ordered
// LOW < MEDIUM < HIGH.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
)

func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "LOW"
	case RiskMedium:
		return "MEDIUM"
	case RiskHigh:
		return "HIGH"
	default:
		return fmt.Sprintf("RiskLevel(%d)", int(r))
	}
}

// ParseRiskLevel parses a level name case-insensitively.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return RiskLow, nil
	case "MEDIUM":
		return RiskMedium, nil
	case "HIGH":
		return RiskHigh, nil
	default:
		return RiskLow, fmt.Errorf("unknown risk level %q", s)
	}
}

func (r RiskLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *RiskLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode risk level: %w", err)
	}
	level, err := ParseRiskLevel(s)
	if err != nil {
		return err
	}
	*r = level
	return nil
}
