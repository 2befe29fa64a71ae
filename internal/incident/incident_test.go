package incident

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/couchcryptid/ride-hazard-service/internal/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	riderLat = -37.8136
	riderLon = 144.9631
)

var fetchedAt = time.Date(2024, 3, 12, 8, 15, 0, 0, time.UTC)

func props(t *testing.T, js string) map[string]json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(js), &m))
	return m
}

func pointFeature(t *testing.T, lat, lon float64, js string) geo.Feature {
	return geo.Feature{
		Properties: props(t, js),
		Geometry:   geo.Geometry{Type: geo.GeometryPoint, Point: geo.Position{lon, lat}},
	}
}

func TestParseProperties_FallbackOrder(t *testing.T) {
	f := geo.Feature{Properties: props(t, `{
		"incidentId": 991,
		"guid": "g-1",
		"type": "Roadworks",
		"category": "ignored",
		"severity": "",
		"impact": "Major",
		"summary": "Lane closed",
		"road": "Flinders St",
		"created_at": "2024-03-12T07:00:00Z"
	}`)}

	p := ParseProperties(f)

	assert.Equal(t, "991", p.ID)
	assert.Equal(t, "Roadworks", p.Type)
	assert.Equal(t, "Major", p.Severity, "empty severity falls through to impact")
	assert.Equal(t, "Lane closed", p.Description)
	assert.Equal(t, "Flinders St", p.Address)
	assert.Equal(t, time.Date(2024, 3, 12, 7, 0, 0, 0, time.UTC), p.Timestamp.UTC())
}

func TestParseProperties_FeatureIDWins(t *testing.T) {
	f := geo.Feature{ID: "top", Properties: props(t, `{"id": "inner"}`)}
	assert.Equal(t, "top", ParseProperties(f).ID)
}

func TestParseProperties_Timestamps(t *testing.T) {
	tests := []struct {
		name string
		js   string
		want int64
	}{
		{"epoch seconds", `{"updated": 1710227700}`, 1710227700},
		{"epoch millis", `{"updated": 1710227700123}`, 1710227700},
		{"string seconds", `{"timestamp": "1710227700"}`, 1710227700},
		{"rfc3339", `{"start": "2024-03-12T07:15:00Z"}`, 1710227700},
		{"first parseable wins", `{"updated": "soon", "created": 1710227700}`, 1710227700},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ParseProperties(geo.Feature{Properties: props(t, tt.js)})
			assert.Equal(t, tt.want, p.Timestamp.Unix())
		})
	}

	p := ParseProperties(geo.Feature{Properties: props(t, `{"updated": "never"}`)})
	assert.True(t, p.Timestamp.IsZero())
}

func TestParseProperties_Empty(t *testing.T) {
	assert.Equal(t, Properties{}, ParseProperties(geo.Feature{}))
}

func TestGeofence_KeepsNearbyOnly(t *testing.T) {
	features := []geo.Feature{
		pointFeature(t, riderLat+0.001, riderLon, `{"id": "near", "incident_type": "Crash"}`),
		pointFeature(t, riderLat+0.01, riderLon, `{"id": "far"}`),
		{Properties: props(t, `{"id": "unknown"}`)},
	}

	got := Geofence("vic", features, riderLat, riderLon, fetchedAt)

	require.Len(t, got, 1)
	rec := got[0]
	assert.Equal(t, "vic#near", rec.ClusterID)
	assert.Equal(t, "Crash", rec.IncidentType)
	assert.Equal(t, fetchedAt.Add(30*time.Minute).Unix(), rec.ExpiresAt)
	assert.False(t, rec.Ackable)
	assert.Equal(t, "vic", rec.Source)
	require.NotNil(t, rec.Lat)
	assert.InDelta(t, riderLat+0.001, *rec.Lat, 1e-9)
	assert.Nil(t, rec.Severity)
}

func TestGeofence_PolygonContainment(t *testing.T) {
	// A large polygon whose vertices are all far from the rider but which
	// contains the rider.
	ring := geo.Ring{
		{riderLon - 0.05, riderLat - 0.05},
		{riderLon - 0.05, riderLat + 0.05},
		{riderLon + 0.05, riderLat + 0.05},
		{riderLon + 0.05, riderLat - 0.05},
	}
	f := geo.Feature{
		ID:         "zone-1",
		Properties: props(t, `{"title": "Flood zone", "severity": "High"}`),
		Geometry:   geo.Geometry{Type: geo.GeometryPolygon, Polygon: []geo.Ring{ring}},
	}

	got := Geofence("floods", []geo.Feature{f}, riderLat, riderLon, fetchedAt)

	require.Len(t, got, 1)
	assert.Equal(t, "floods#zone-1", got[0].ClusterID)
	assert.Equal(t, DefaultType, got[0].IncidentType)
	require.NotNil(t, got[0].Severity)
	assert.Equal(t, "High", *got[0].Severity)
	assert.Equal(t, "Flood zone", got[0].Description)
}

func TestGeofence_FallbackClusterID(t *testing.T) {
	withTime := pointFeature(t, riderLat, riderLon, `{"updated": 1710227700}`)
	withoutTime := pointFeature(t, riderLat, riderLon, `{}`)

	got := Geofence("vic", []geo.Feature{withTime, withoutTime}, riderLat, riderLon, fetchedAt)

	require.Len(t, got, 2)
	assert.Equal(t, "vic#-37.8136_144.9631_1710227700", got[0].ClusterID)
	assert.Equal(t, "vic#-37.8136_144.9631_1710231300", got[1].ClusterID)
}

func TestGeofence_StableAcrossPolls(t *testing.T) {
	f := pointFeature(t, riderLat, riderLon, `{"event_id": "e-5"}`)

	first := Geofence("vic", []geo.Feature{f}, riderLat, riderLon, fetchedAt)
	second := Geofence("vic", []geo.Feature{f}, riderLat, riderLon, fetchedAt.Add(time.Minute))

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ClusterID, second[0].ClusterID)
	assert.Greater(t, second[0].ExpiresAt, first[0].ExpiresAt)
}

func TestGeofence_Empty(t *testing.T) {
	assert.Empty(t, Geofence("vic", nil, riderLat, riderLon, fetchedAt))
}
