package domain

import (
	"context"
	"log/slog"
)

// ResolveAddress reverse-geocodes (lat, lon) to a formatted address. A nil
// geocoder, a provider failure, or an empty result all yield "" so callers
// degrade to showing no address.
func ResolveAddress(ctx context.Context, geocoder Geocoder, lat, lon float64, logger *slog.Logger) string {
	if geocoder == nil {
		return ""
	}

	result, err := geocoder.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		logger.Warn("reverse geocoding failed",
			"lat", lat,
			"lon", lon,
			"error", err,
		)
		return ""
	}
	if result.FormattedAddress != "" {
		return result.FormattedAddress
	}
	return result.PlaceName
}
