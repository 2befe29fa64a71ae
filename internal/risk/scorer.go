// Package risk scores a spatio-temporal context against a historical incident
// dataset and buckets the result into a discrete risk level.
package risk

import (
	"math"
	"sync"

	"github.com/couchcryptid/ride-hazard-service/internal/domain"
	"github.com/couchcryptid/ride-hazard-service/internal/geo"
)

// Calibration constants. Denominator is the historical record count the
// likelihood space was calibrated against; the thresholds are applied to
// matched/Denominator and are not derived from the loaded dataset.
const (
	Denominator       = 172115
	MediumThreshold   = 0.001
	HighThreshold     = 0.002
	MatchRadiusMeters = 250.0
)

// Result is the outcome of scoring one context.
type Result struct {
	Level        domain.RiskLevel
	WeatherLabel string
	Matched      int
	Likelihood   float64
}

// Dataset is read-only historical reference data. Condition indices are
// built once on first use and shared by all subsequent scores.
type Dataset struct {
	Records    []domain.HistoricalRecord
	Atmosphere []domain.Condition
	Surface    []domain.Condition

	once          sync.Once
	atmosphereIdx map[string]domain.AtmosphereCode
	surfaceIdx    map[string]domain.SurfaceCode
}

// NewDataset creates a Dataset from records and their condition side tables.
func NewDataset(records []domain.HistoricalRecord, atmosphere, surface []domain.Condition) *Dataset {
	return &Dataset{Records: records, Atmosphere: atmosphere, Surface: surface}
}

// Len returns the number of historical records, treating nil as empty.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Records)
}

func (d *Dataset) indices() (map[string]domain.AtmosphereCode, map[string]domain.SurfaceCode) {
	d.once.Do(func() {
		d.atmosphereIdx = make(map[string]domain.AtmosphereCode, len(d.Atmosphere))
		for _, c := range d.Atmosphere {
			d.atmosphereIdx[c.RecordID] = domain.AtmosphereCode(c.Code)
		}
		d.surfaceIdx = make(map[string]domain.SurfaceCode, len(d.Surface))
		for _, c := range d.Surface {
			d.surfaceIdx[c.RecordID] = domain.SurfaceCode(c.Code)
		}
	})
	return d.atmosphereIdx, d.surfaceIdx
}

// Score returns the risk level for ctx. It never fails: without a dataset it
// falls back to a weather heuristic, and malformed records are skipped.
func Score(ctx domain.Context, ds *Dataset) Result {
	res := Result{WeatherLabel: domain.WeatherLabel(ctx.Weather)}

	if ds.Len() == 0 {
		res.Level = heuristic(ctx)
		return res
	}

	atmos, surfaces := ds.indices()
	for i := range ds.Records {
		if matches(ctx, &ds.Records[i], atmos, surfaces) {
			res.Matched++
		}
	}

	res.Likelihood = float64(res.Matched) / Denominator
	res.Level = Categorize(res.Likelihood)
	return res
}

// Categorize maps a likelihood onto a risk level.
func Categorize(likelihood float64) domain.RiskLevel {
	switch {
	case likelihood >= HighThreshold:
		return domain.RiskHigh
	case likelihood >= MediumThreshold:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// heuristic is the conservative fallback used when no historical data is
// loaded.
func heuristic(ctx domain.Context) domain.RiskLevel {
	if ctx.Weather == nil {
		return domain.RiskLow
	}
	switch *ctx.Weather {
	case domain.AtmosphereStrongWinds:
		return domain.RiskHigh
	case domain.AtmosphereRaining:
		if ctx.Hour >= 18 || ctx.Hour <= 6 {
			return domain.RiskHigh
		}
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

func matches(ctx domain.Context, rec *domain.HistoricalRecord, atmos map[string]domain.AtmosphereCode, surfaces map[string]domain.SurfaceCode) bool {
	if rec.Hour != ctx.Hour || rec.Month != ctx.Month || rec.DayOfWeek != ctx.DayOfWeek {
		return false
	}
	if !finite(rec.Lat) || !finite(rec.Lon) {
		return false
	}

	// Only a positive mismatch disqualifies; a missing code on either side
	// passes.
	if ctx.Weather != nil {
		if code, ok := atmos[rec.ID]; ok && code != *ctx.Weather {
			return false
		}
	}
	if ctx.Surface != nil {
		if code, ok := surfaces[rec.ID]; ok && code != *ctx.Surface {
			return false
		}
	}

	return geo.DistanceMeters(ctx.Lat, ctx.Lon, rec.Lat, rec.Lon) <= MatchRadiusMeters
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
