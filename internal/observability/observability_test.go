package observability

import (
	"log/slog"
	"testing"

	"github.com/couchcryptid/ride-hazard-service/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestNewLogger_Level(t *testing.T) {
	logger := NewLogger(&config.Config{LogLevel: "warn", LogFormat: "text"})
	assert.False(t, logger.Enabled(t.Context(), slog.LevelInfo))
	assert.True(t, logger.Enabled(t.Context(), slog.LevelWarn))
}

func TestNewLogger_UnknownLevelDefaultsToInfo(t *testing.T) {
	logger := NewLogger(&config.Config{LogLevel: "nonsense", LogFormat: "json"})
	assert.False(t, logger.Enabled(t.Context(), slog.LevelDebug))
	assert.True(t, logger.Enabled(t.Context(), slog.LevelInfo))
}

func TestNewMetricsForTesting_Registerable(t *testing.T) {
	// Fresh instances register cleanly into separate registries.
	for range 2 {
		m := NewMetricsForTesting()
		reg := prometheus.NewRegistry()
		assert.NotPanics(t, func() {
			reg.MustRegister(m.CyclesStarted, m.SourceErrors, m.RiskQueries, m.GeocodeCache)
		})
	}
}
