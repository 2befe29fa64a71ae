// Package config loads service settings from environment variables, with an
// optional config file underneath them.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/spf13/viper"
)

// IncidentFeed names one GeoJSON incident feed.
type IncidentFeed struct {
	Name string
	URL  string
}

// Config holds all service settings.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Aggregation.
	PollInterval   time.Duration
	FetchTimeout   time.Duration
	ClusterFeedURL string
	IncidentFeeds  []IncidentFeed

	DatabasePath  string
	WeatherAPIURL string

	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaSnapshotTopic string
	KafkaSignalTopic   string
	KafkaGroupID       string

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
	MapboxCacheTTL  time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("shutdown_timeout", "10s")

	v.SetDefault("poll_interval", "60s")
	v.SetDefault("fetch_timeout", "10s")
	v.SetDefault("cluster_feed_url", "")
	v.SetDefault("incident_feeds", "")

	v.SetDefault("database_path", "./data/ride-hazard.db")
	v.SetDefault("weather_api_url", "https://api.open-meteo.com")

	v.SetDefault("kafka_enabled", "false")
	v.SetDefault("kafka_brokers", "localhost:9092")
	v.SetDefault("kafka_snapshot_topic", "hazard-snapshots")
	v.SetDefault("kafka_signal_topic", "hazard-signals")
	v.SetDefault("kafka_group_id", "ride-hazard")

	v.SetDefault("mapbox_token", "")
	v.SetDefault("mapbox_timeout", "5s")
	v.SetDefault("mapbox_cache_size", "1000")
	v.SetDefault("mapbox_cache_ttl", "24h")
}

// Load reads configuration from environment variables, applying defaults
// where unset. When CONFIG_FILE names a file its values sit between the
// defaults and the environment.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read CONFIG_FILE %s: %w", path, err)
		}
	}

	var errs []error
	duration := func(key string) time.Duration {
		d, err := positiveDuration(v, key)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}
	boolean := func(key string) bool {
		b, err := strconv.ParseBool(v.GetString(key))
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %q", strings.ToUpper(key), v.GetString(key)))
		}
		return b
	}

	cfg := &Config{
		HTTPAddr:        v.GetString("http_addr"),
		LogLevel:        strings.ToLower(v.GetString("log_level")),
		LogFormat:       strings.ToLower(v.GetString("log_format")),
		ShutdownTimeout: duration("shutdown_timeout"),

		PollInterval:   duration("poll_interval"),
		FetchTimeout:   duration("fetch_timeout"),
		ClusterFeedURL: strings.TrimSpace(v.GetString("cluster_feed_url")),

		DatabasePath:  v.GetString("database_path"),
		WeatherAPIURL: strings.TrimRight(v.GetString("weather_api_url"), "/"),

		KafkaEnabled:       boolean("kafka_enabled"),
		KafkaBrokers:       sharedcfg.ParseBrokers(v.GetString("kafka_brokers")),
		KafkaSnapshotTopic: v.GetString("kafka_snapshot_topic"),
		KafkaSignalTopic:   v.GetString("kafka_signal_topic"),
		KafkaGroupID:       v.GetString("kafka_group_id"),

		MapboxToken:    v.GetString("mapbox_token"),
		MapboxTimeout:  duration("mapbox_timeout"),
		MapboxCacheTTL: duration("mapbox_cache_ttl"),
	}

	cfg.MapboxEnabled = cfg.MapboxToken != ""
	if v.IsSet("mapbox_enabled") && v.GetString("mapbox_enabled") != "" {
		cfg.MapboxEnabled = boolean("mapbox_enabled")
	}

	size, err := strconv.Atoi(v.GetString("mapbox_cache_size"))
	if err != nil || size <= 0 {
		errs = append(errs, fmt.Errorf("invalid MAPBOX_CACHE_SIZE: %q", v.GetString("mapbox_cache_size")))
	}
	cfg.MapboxCacheSize = size

	feeds, err := ParseIncidentFeeds(v.GetString("incident_feeds"))
	if err != nil {
		errs = append(errs, err)
	}
	cfg.IncidentFeeds = feeds

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be one of: json, text")
	}
	if c.DatabasePath == "" {
		return errors.New("DATABASE_PATH is required")
	}
	if c.ClusterFeedURL != "" {
		if err := checkURL(c.ClusterFeedURL); err != nil {
			return fmt.Errorf("invalid CLUSTER_FEED_URL: %w", err)
		}
	}
	if err := checkURL(c.WeatherAPIURL); err != nil {
		return fmt.Errorf("invalid WEATHER_API_URL: %w", err)
	}
	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if c.KafkaSnapshotTopic == "" {
			return errors.New("KAFKA_SNAPSHOT_TOPIC is required when KAFKA_ENABLED is true")
		}
		if c.KafkaSignalTopic == "" {
			return errors.New("KAFKA_SIGNAL_TOPIC is required when KAFKA_ENABLED is true")
		}
	}
	if c.MapboxEnabled && c.MapboxToken == "" {
		return errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	return nil
}

// ParseIncidentFeeds parses a comma-separated list of name=url pairs.
// Names must be unique.
func ParseIncidentFeeds(s string) ([]IncidentFeed, error) {
	var feeds []IncidentFeed
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, rawURL, ok := strings.Cut(part, "=")
		name, rawURL = strings.TrimSpace(name), strings.TrimSpace(rawURL)
		if !ok || name == "" || rawURL == "" {
			return nil, fmt.Errorf("invalid INCIDENT_FEEDS entry %q: want name=url", part)
		}
		if seen[name] {
			return nil, fmt.Errorf("invalid INCIDENT_FEEDS: duplicate feed %q", name)
		}
		if err := checkURL(rawURL); err != nil {
			return nil, fmt.Errorf("invalid INCIDENT_FEEDS url for %q: %w", name, err)
		}
		seen[name] = true
		feeds = append(feeds, IncidentFeed{Name: name, URL: rawURL})
	}
	return feeds, nil
}

func positiveDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := v.GetString(key)
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", strings.ToUpper(key), raw)
	}
	return d, nil
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
