// Package weather scores the rider's current conditions and maintains the
// cached list of weather-derived alerts that the aggregator merges.
package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/ride-hazard-service/internal/domain"
	"github.com/couchcryptid/ride-hazard-service/internal/kvstore"
	"github.com/couchcryptid/ride-hazard-service/internal/observability"
	"github.com/couchcryptid/ride-hazard-service/internal/risk"
)

// AlertTTL is how long a weather-derived alert stays live after a refresh.
const AlertTTL = 30 * time.Minute

// Provider reports current weather at a coordinate.
type Provider interface {
	Current(ctx context.Context, lat, lon float64) (domain.Observation, error)
}

// Response is the risk query result served to clients.
type Response struct {
	OK         bool                `json:"ok"`
	Risk       domain.RiskLevel    `json:"risk"`
	RiskText   string              `json:"riskText"`
	Address    string              `json:"address,omitempty"`
	Weather    *domain.Observation `json:"weather,omitempty"`
	Atmosphere string              `json:"atmosphere,omitempty"`
}

// ErrInvalidCoordinates is returned for non-finite or out-of-range input.
var ErrInvalidCoordinates = errors.New("invalid coordinates")

// Synthesizer turns risk scores into weather alerts keyed by grid cell.
type Synthesizer struct {
	provider Provider
	geocoder domain.Geocoder
	dataset  *risk.Dataset
	kv       kvstore.Store
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics

	// mu serializes the read-modify-write of the weather alert list.
	mu sync.Mutex
}

// NewSynthesizer creates a Synthesizer. provider, geocoder, and dataset may
// each be nil.
func NewSynthesizer(provider Provider, geocoder domain.Geocoder, dataset *risk.Dataset, kv kvstore.Store, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Synthesizer {
	return &Synthesizer{
		provider: provider,
		geocoder: geocoder,
		dataset:  dataset,
		kv:       kv,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
	}
}

// Refresh scores (lat, lon) under current conditions, updates the cell's
// weather alert, and returns the risk response. Provider and geocoder
// failures degrade to a response without weather or address.
func (s *Synthesizer) Refresh(ctx context.Context, lat, lon float64) (Response, error) {
	if !(domain.Coordinates{Lat: lat, Lon: lon}).Valid() {
		return Response{}, ErrInvalidCoordinates
	}

	now := s.clock.Now()
	obs, haveObs := s.observe(ctx, lat, lon)
	code := obs.Classify()

	qctx := domain.NewContext(lat, lon, now).WithWeather(code)
	result := risk.Score(qctx, s.dataset)
	s.metrics.RiskQueries.WithLabelValues(result.Level.String()).Inc()

	resp := Response{
		OK:         true,
		Risk:       result.Level,
		RiskText:   RiskText(result.Level, result.WeatherLabel),
		Address:    domain.ResolveAddress(ctx, s.geocoder, lat, lon, s.logger),
		Atmosphere: result.WeatherLabel,
	}
	if haveObs {
		resp.Weather = &obs
	}

	if resp.Address != "" {
		if err := kvstore.SetJSON(ctx, s.kv, kvstore.KeyLastAddress, resp.Address); err != nil {
			s.logger.Warn("store last address failed", "error", err)
		}
	}

	if err := s.updateAlerts(ctx, lat, lon, now, result, resp); err != nil {
		return resp, err
	}

	s.logger.Debug("risk refreshed",
		"cell", domain.CellID(lat, lon),
		"level", result.Level.String(),
		"matched", result.Matched,
		"atmosphere", result.WeatherLabel,
	)
	return resp, nil
}

func (s *Synthesizer) observe(ctx context.Context, lat, lon float64) (domain.Observation, bool) {
	if s.provider == nil {
		return domain.Observation{}, false
	}
	obs, err := s.provider.Current(ctx, lat, lon)
	if err != nil {
		if ctx.Err() == nil {
			s.metrics.SourceErrors.WithLabelValues("weather_provider").Inc()
			s.logger.Warn("current weather unavailable", "error", err)
		}
		return domain.Observation{}, false
	}
	return obs, true
}

// updateAlerts upserts or removes the cell's alert and drops expired alerts
// of other cells.
func (s *Synthesizer) updateAlerts(ctx context.Context, lat, lon float64, now time.Time, result risk.Result, resp Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current []domain.AlertRecord
	if _, err := kvstore.GetJSON(ctx, s.kv, kvstore.KeyWeatherAlerts, &current); err != nil {
		return fmt.Errorf("read weather alerts: %w", err)
	}

	id := domain.WeatherClusterID(lat, lon)
	next := make([]domain.AlertRecord, 0, len(current)+1)
	for _, a := range current {
		if a.ClusterID == id || !a.ExpiresAfter(now) {
			continue
		}
		next = append(next, a)
	}

	if result.Level >= domain.RiskMedium {
		next = append(next, domain.AlertRecord{
			ClusterID:    id,
			IncidentType: "weather",
			Severity:     domain.StringPtr(result.Level.String()),
			ExpiresAt:    now.Add(AlertTTL).Unix(),
			Lat:          domain.Float64Ptr(lat),
			Lon:          domain.Float64Ptr(lon),
			Description:  resp.RiskText,
			Address:      resp.Address,
			Source:       "weather",
			Meta: domain.SourceMeta{
				"cell":       domain.CellID(lat, lon),
				"atmosphere": result.WeatherLabel,
				"matched":    fmt.Sprint(result.Matched),
				"likelihood": fmt.Sprintf("%.6f", result.Likelihood),
			},
		})
	}

	if err := kvstore.SetJSON(ctx, s.kv, kvstore.KeyWeatherAlerts, next); err != nil {
		return fmt.Errorf("write weather alerts: %w", err)
	}
	return nil
}

// RiskText is the short human-readable summary of a risk level.
func RiskText(level domain.RiskLevel, weatherLabel string) string {
	var text string
	switch level {
	case domain.RiskHigh:
		text = "High risk"
	case domain.RiskMedium:
		text = "Medium risk"
	default:
		text = "Low risk"
	}
	if weatherLabel != "" && weatherLabel != domain.UnknownWeatherLabel {
		text += " (" + weatherLabel + ")"
	}
	return text
}
