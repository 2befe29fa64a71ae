// Package observability builds the service logger and Prometheus metrics.
package observability

import (
	"log/slog"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/ride-hazard-service/internal/config"
)

// NewLogger returns the shared stdout logger at the configured level and
// format, tagged with the service name.
func NewLogger(cfg *config.Config) *slog.Logger {
	return sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat).With("service", "ride-hazard")
}
