package incident

import (
	"fmt"
	"time"

	"github.com/couchcryptid/ride-hazard-service/internal/domain"
	"github.com/couchcryptid/ride-hazard-service/internal/geo"
)

const (
	// RadiusMeters is the geofence applied around the rider.
	RadiusMeters = 250.0
	// TTL is how long an incident-feed alert stays live after it was fetched.
	TTL = 30 * time.Minute
	// DefaultType is used when a feature names no incident type.
	DefaultType = "incident"
)

// Geofence keeps the features within RadiusMeters of (lat, lon) and maps
// them to alert records owned by feedName. Features with unknown or
// non-finite geometry are dropped.
func Geofence(feedName string, features []geo.Feature, lat, lon float64, fetchedAt time.Time) []domain.AlertRecord {
	out := make([]domain.AlertRecord, 0)
	for i := range features {
		f := &features[i]
		if geo.FeatureDistance(*f, lat, lon) > RadiusMeters {
			continue
		}
		if rec, ok := ToAlert(feedName, *f, fetchedAt); ok {
			out = append(out, rec)
		}
	}
	return out
}

// ToAlert maps one feature to an alert record. It reports false when the
// feature has no usable coordinate.
func ToAlert(feedName string, f geo.Feature, fetchedAt time.Time) (domain.AlertRecord, bool) {
	first, ok := f.Geometry.First()
	if !ok || !first.Valid() {
		return domain.AlertRecord{}, false
	}
	props := ParseProperties(f)

	rec := domain.AlertRecord{
		ClusterID:    clusterID(feedName, props, first, fetchedAt),
		IncidentType: props.Type,
		ExpiresAt:    fetchedAt.Add(TTL).Unix(),
		Lat:          domain.Float64Ptr(first.Lat()),
		Lon:          domain.Float64Ptr(first.Lon()),
		Description:  props.Description,
		Address:      props.Address,
		Source:       feedName,
		Meta: domain.SourceMeta{
			"feed":     feedName,
			"geometry": string(f.Geometry.Type),
		},
	}
	if rec.IncidentType == "" {
		rec.IncidentType = DefaultType
	}
	if props.Severity != "" {
		rec.Severity = domain.StringPtr(props.Severity)
	}
	if props.ID != "" {
		rec.Meta["feedId"] = props.ID
	}
	return rec, true
}

// clusterID is stable across polls for features that carry an id. Without
// one it falls back to the rounded first coordinate plus the feature's own
// timestamp, or the fetch time when the feature has none.
func clusterID(feedName string, props Properties, first geo.Position, fetchedAt time.Time) string {
	if props.ID != "" {
		return feedName + "#" + props.ID
	}
	ts := props.Timestamp
	if ts.IsZero() {
		ts = fetchedAt
	}
	return fmt.Sprintf("%s#%.4f_%.4f_%d", feedName, first.Lat(), first.Lon(), ts.Unix())
}
