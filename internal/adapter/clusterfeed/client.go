// Package clusterfeed fetches the backend's already-merged alert clusters.
package clusterfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/ride-hazard-service/internal/domain"
)

// Client implements aggregator.ClusterSource over HTTP.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a cluster feed client for url.
func NewClient(url string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type response struct {
	OK        bool              `json:"ok"`
	ServerNow int64             `json:"serverNow"`
	Alerts    []json.RawMessage `json:"alerts"`
}

// FetchClusters returns the backend's current alerts.
func (c *Client) FetchClusters(ctx context.Context) ([]domain.AlertRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cluster feed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("cluster feed error: status %d: %s", resp.StatusCode, body)
	}

	var payload response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode cluster feed: %w", err)
	}
	if !payload.OK {
		return nil, errors.New("cluster feed returned ok=false")
	}

	alerts := make([]domain.AlertRecord, 0, len(payload.Alerts))
	skipped := 0
	for i, raw := range payload.Alerts {
		var rec domain.AlertRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			skipped++
			c.logger.Warn("skipping malformed cluster alert", "index", i, "error", err)
			continue
		}
		alerts = append(alerts, rec)
	}

	c.logger.Debug("cluster feed fetched", "alerts", len(alerts), "skipped", skipped, "server_now", payload.ServerNow)
	return alerts, nil
}
