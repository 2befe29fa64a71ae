// Package incidentfeed fetches official incident feeds published as GeoJSON
// feature collections.
package incidentfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/ride-hazard-service/internal/geo"
)

// Client implements aggregator.IncidentSource for one feed.
type Client struct {
	name       string
	url        string
	httpClient *http.Client
	clock      clockwork.Clock
	logger     *slog.Logger
}

// NewClient creates a client for the feed called name at rawURL.
func NewClient(name, rawURL string, timeout time.Duration, clock clockwork.Clock, logger *slog.Logger) *Client {
	return &Client{
		name:       name,
		url:        rawURL,
		httpClient: &http.Client{Timeout: timeout},
		clock:      clock,
		logger:     logger,
	}
}

// Name identifies the feed; it prefixes the cluster ids of its alerts.
func (c *Client) Name() string { return c.name }

// FetchFeatures downloads the feed. Features that fail to decode are dropped
// by the collection decoder; only transport errors and non-GeoJSON bodies are
// returned as errors.
func (c *Client) FetchFeatures(ctx context.Context) ([]geo.Feature, error) {
	u, err := c.cacheBusted()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s feed request: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s feed error: status %d: %s", c.name, resp.StatusCode, body)
	}

	var fc geo.FeatureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return nil, fmt.Errorf("decode %s feed: %w", c.name, err)
	}

	c.logger.Debug("incident feed fetched", "feed", c.name, "features", len(fc.Features))
	return fc.Features, nil
}

// cacheBusted appends "_=<unix ms>" so intermediaries don't serve a stale
// copy.
func (c *Client) cacheBusted() (string, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return "", fmt.Errorf("parse %s feed url: %w", c.name, err)
	}
	q := u.Query()
	q.Set("_", strconv.FormatInt(c.clock.Now().UnixMilli(), 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
