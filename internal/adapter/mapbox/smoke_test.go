//go:build mapbox

package mapbox

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/ride-hazard-service/internal/observability"
)

// These tests hit the real Mapbox API and require a valid MAPBOX_TOKEN env var.
// Run with: go test -tags=mapbox ./internal/adapter/mapbox/ -v -count=1

func smokeClient(t *testing.T) *Client {
	t.Helper()
	token := os.Getenv("MAPBOX_TOKEN")
	if token == "" {
		t.Fatal("MAPBOX_TOKEN must be set to run smoke tests")
	}
	return NewClient(token, 10*time.Second, observability.NewMetricsForTesting(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSmoke_ReverseGeocode(t *testing.T) {
	c := smokeClient(t)

	// Melbourne CBD
	result, err := c.ReverseGeocode(context.Background(), -37.8136, 144.9631)
	require.NoError(t, err)

	assert.Contains(t, result.FormattedAddress, "Melbourne")
	assert.NotEmpty(t, result.PlaceName)
	assert.Greater(t, result.Confidence, 0.0)
}

func TestSmoke_ReverseGeocode_Ocean(t *testing.T) {
	c := smokeClient(t)

	// Mid-Pacific may or may not resolve; either way it must not error.
	_, err := c.ReverseGeocode(context.Background(), -20.0, -140.0)
	require.NoError(t, err)
}

func TestSmoke_CachedGeocoder(t *testing.T) {
	c := smokeClient(t)
	cached := NewCachedGeocoder(c, CacheConfig{MaxEntries: 10, TTL: time.Hour}, clockwork.NewRealClock(), observability.NewMetricsForTesting())

	// First call: cache miss, real API call.
	r1, err := cached.ReverseGeocode(context.Background(), -33.8688, 151.2093)
	require.NoError(t, err)
	assert.Contains(t, r1.FormattedAddress, "Sydney")

	// Second call: cache hit, no API call.
	r2, err := cached.ReverseGeocode(context.Background(), -33.8688, 151.2093)
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
}
