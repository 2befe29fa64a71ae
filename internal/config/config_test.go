package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	defaultBroker   = "localhost:9092"
	testMapboxToken = "pk.test-token"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 60*time.Second, cfg.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.FetchTimeout)
	assert.Empty(t, cfg.ClusterFeedURL)
	assert.Empty(t, cfg.IncidentFeeds)
	assert.Equal(t, "./data/ride-hazard.db", cfg.DatabasePath)
	assert.Equal(t, "https://api.open-meteo.com", cfg.WeatherAPIURL)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
	assert.Equal(t, "hazard-snapshots", cfg.KafkaSnapshotTopic)
	assert.Equal(t, "hazard-signals", cfg.KafkaSignalTopic)
	assert.Equal(t, "ride-hazard", cfg.KafkaGroupID)
	assert.False(t, cfg.MapboxEnabled)
	assert.Empty(t, cfg.MapboxToken)
	assert.Equal(t, 5*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, 1000, cfg.MapboxCacheSize)
	assert.Equal(t, 24*time.Hour, cfg.MapboxCacheTTL)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("POLL_INTERVAL", "2m")
	t.Setenv("FETCH_TIMEOUT", "3s")
	t.Setenv("CLUSTER_FEED_URL", "https://hazards.example.com/api/clusters")
	t.Setenv("INCIDENT_FEEDS", "vic=https://data.example.com/vic.geojson, nsw=https://data.example.com/nsw.geojson")
	t.Setenv("DATABASE_PATH", "/var/lib/ride-hazard/db.sqlite")
	t.Setenv("WEATHER_API_URL", "http://weather.local/")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("KAFKA_SNAPSHOT_TOPIC", "snaps")
	t.Setenv("KAFKA_SIGNAL_TOPIC", "signals")
	t.Setenv("KAFKA_GROUP_ID", "custom-group")
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("MAPBOX_TIMEOUT", "10s")
	t.Setenv("MAPBOX_CACHE_SIZE", "500")
	t.Setenv("MAPBOX_CACHE_TTL", "1h")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 2*time.Minute, cfg.PollInterval)
	assert.Equal(t, 3*time.Second, cfg.FetchTimeout)
	assert.Equal(t, "https://hazards.example.com/api/clusters", cfg.ClusterFeedURL)
	assert.Equal(t, []IncidentFeed{
		{Name: "vic", URL: "https://data.example.com/vic.geojson"},
		{Name: "nsw", URL: "https://data.example.com/nsw.geojson"},
	}, cfg.IncidentFeeds)
	assert.Equal(t, "/var/lib/ride-hazard/db.sqlite", cfg.DatabasePath)
	assert.Equal(t, "http://weather.local", cfg.WeatherAPIURL)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "snaps", cfg.KafkaSnapshotTopic)
	assert.Equal(t, "signals", cfg.KafkaSignalTopic)
	assert.Equal(t, "custom-group", cfg.KafkaGroupID)
	assert.True(t, cfg.MapboxEnabled)
	assert.Equal(t, testMapboxToken, cfg.MapboxToken)
	assert.Equal(t, 10*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, 500, cfg.MapboxCacheSize)
	assert.Equal(t, time.Hour, cfg.MapboxCacheTTL)
}

func TestLoad_InvalidDurations(t *testing.T) {
	for _, key := range []string{"SHUTDOWN_TIMEOUT", "POLL_INTERVAL", "FETCH_TIMEOUT", "MAPBOX_TIMEOUT", "MAPBOX_CACHE_TTL"} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, "not-a-duration")
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestLoad_NegativeShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "-1s")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_ReportsEveryBadKey(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "soon")
	t.Setenv("MAPBOX_CACHE_SIZE", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POLL_INTERVAL")
	assert.Contains(t, err.Error(), "MAPBOX_CACHE_SIZE")
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOG_LEVEL")
}

func TestLoad_InvalidKafkaEnabled(t *testing.T) {
	t.Setenv("KAFKA_ENABLED", "maybe")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KAFKA_ENABLED")
}

func TestLoad_KafkaEnabledWithoutBrokers(t *testing.T) {
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", " , ")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KAFKA_BROKERS")
}

func TestLoad_InvalidClusterFeedURL(t *testing.T) {
	t.Setenv("CLUSTER_FEED_URL", "ftp://example.com/feed")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CLUSTER_FEED_URL")
}

func TestLoad_MapboxEnabledWithoutToken(t *testing.T) {
	t.Setenv("MAPBOX_ENABLED", "true")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAPBOX_TOKEN")
}

func TestLoad_MapboxTokenImpliesEnabled(t *testing.T) {
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.MapboxEnabled)
}

func TestLoad_MapboxExplicitlyDisabled(t *testing.T) {
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("MAPBOX_ENABLED", "false")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.MapboxEnabled)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ride-hazard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"poll_interval: 30s\n"+
			"incident_feeds: vic=https://data.example.com/vic.geojson\n"+
			"http_addr: \":7000\"\n",
	), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("HTTP_ADDR", ":7100")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	require.Len(t, cfg.IncidentFeeds, 1)
	assert.Equal(t, "vic", cfg.IncidentFeeds[0].Name)
	assert.Equal(t, ":7100", cfg.HTTPAddr, "environment overrides the file")
}

func TestLoad_MissingConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONFIG_FILE")
}

func TestParseIncidentFeeds(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []IncidentFeed
		wantErr string
	}{
		{name: "empty", in: ""},
		{name: "trailing comma", in: "a=http://a.example/x,", want: []IncidentFeed{{Name: "a", URL: "http://a.example/x"}}},
		{name: "url with query", in: "a=https://a.example/x?format=geojson&v=2",
			want: []IncidentFeed{{Name: "a", URL: "https://a.example/x?format=geojson&v=2"}}},
		{name: "missing equals", in: "https://a.example/x", wantErr: "want name=url"},
		{name: "missing name", in: "=https://a.example/x", wantErr: "want name=url"},
		{name: "duplicate", in: "a=http://a.example,a=http://b.example", wantErr: "duplicate"},
		{name: "bad scheme", in: "a=file:///tmp/x", wantErr: "scheme"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIncidentFeeds(tt.in)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
