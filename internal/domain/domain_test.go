package domain

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeatherLabel(t *testing.T) {
	tests := []struct {
		code *AtmosphereCode
		want string
	}{
		{Atmosphere(AtmosphereClear), "Clear"},
		{Atmosphere(AtmosphereRaining), "Raining"},
		{Atmosphere(AtmosphereSnowing), "Snowing"},
		{Atmosphere(AtmosphereFog), "Fog"},
		{Atmosphere(AtmosphereSmoke), "Smoke"},
		{Atmosphere(AtmosphereDust), "Dust"},
		{Atmosphere(AtmosphereStrongWinds), "Strong winds"},
		{Atmosphere(AtmosphereNotKnown), "Not known"},
		{Atmosphere(AtmosphereCode(8)), "Unknown"},
		{nil, "Unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, WeatherLabel(tt.code))
		})
	}
}

func TestRiskLevel_JSON(t *testing.T) {
	data, err := json.Marshal(map[string]RiskLevel{"risk": RiskHigh})
	require.NoError(t, err)
	assert.JSONEq(t, `{"risk":"HIGH"}`, string(data))

	var lvl RiskLevel
	require.NoError(t, json.Unmarshal([]byte(`"medium"`), &lvl))
	assert.Equal(t, RiskMedium, lvl)

	assert.Error(t, json.Unmarshal([]byte(`"extreme"`), &lvl))
	assert.Error(t, json.Unmarshal([]byte(`3`), &lvl))
}

func TestRiskLevel_Ordering(t *testing.T) {
	assert.Less(t, RiskLow, RiskMedium)
	assert.Less(t, RiskMedium, RiskHigh)
	assert.Equal(t, "RiskLevel(7)", RiskLevel(7).String())
}

func TestAlertRecord_ExpiresAfter(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	a := AlertRecord{ClusterID: "x", ExpiresAt: now.Unix()}

	assert.False(t, a.ExpiresAfter(now), "expiresAt == now is expired")
	a.ExpiresAt++
	assert.True(t, a.ExpiresAfter(now))
	assert.Equal(t, time.Second, a.TTL(now))

	a.ExpiresAt = now.Unix() - 10
	assert.Zero(t, a.TTL(now))
}

func TestAlertRecord_JSONNames(t *testing.T) {
	a := AlertRecord{
		ClusterID:    "vic#1",
		IncidentType: "crash",
		Severity:     StringPtr("major"),
		ExpiresAt:    1700000000,
		Lat:          Float64Ptr(-37.8),
		Lon:          Float64Ptr(144.9),
		Ackable:      true,
		Meta:         SourceMeta{"feed": "vic"},
	}
	data, err := json.Marshal(a)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"clusterId": "vic#1",
		"incidentType": "crash",
		"severity": "major",
		"expiresAt": 1700000000,
		"lat": -37.8,
		"lon": 144.9,
		"ackable": true,
		"sourceMeta": {"feed": "vic"}
	}`, string(data))
}

func TestSourceMeta_Unmarshal(t *testing.T) {
	var a AlertRecord
	require.NoError(t, json.Unmarshal([]byte(`{
		"clusterId": "c-1",
		"sourceMeta": {"feed": "vic", "reports": 3, "verified": true, "tags": ["a", "b"], "gone": null}
	}`), &a))
	assert.Equal(t, SourceMeta{"feed": "vic", "reports": "3", "verified": "true", "tags": `["a","b"]`}, a.Meta)

	var b AlertRecord
	require.NoError(t, json.Unmarshal([]byte(`{"clusterId": "c-2", "sourceMeta": null}`), &b))
	assert.Nil(t, b.Meta)

	var c AlertRecord
	assert.Error(t, json.Unmarshal([]byte(`{"clusterId": "c-3", "sourceMeta": "vic"}`), &c))
}

func TestSnapshot_Clone(t *testing.T) {
	orig := Snapshot{
		ID: "s-1",
		Alerts: []AlertRecord{{
			ClusterID: "c-1",
			Severity:  StringPtr("high"),
			Lat:       Float64Ptr(-37.8),
			Lon:       Float64Ptr(144.9),
			Meta:      SourceMeta{"feed": "vic"},
		}},
		Total: 1,
	}

	cp := orig.Clone()
	cp.Alerts[0].ClusterID = "changed"
	*cp.Alerts[0].Severity = "low"
	*cp.Alerts[0].Lat = 0
	cp.Alerts[0].Meta["feed"] = "nsw"

	assert.Equal(t, "c-1", orig.Alerts[0].ClusterID)
	assert.Equal(t, "high", *orig.Alerts[0].Severity)
	assert.InDelta(t, -37.8, *orig.Alerts[0].Lat, 1e-9)
	assert.Equal(t, "vic", orig.Alerts[0].Meta["feed"])

	assert.Nil(t, Snapshot{ID: "empty"}.Clone().Alerts)
}

func TestCellID(t *testing.T) {
	assert.Equal(t, "-37.814_144.963", CellID(-37.8136, 144.9631))
	assert.Equal(t, "0.123_0.000", CellID(0.123, 0.0004))
	assert.Equal(t, "weather#-37.814_144.963", WeatherClusterID(-37.8136, 144.9631))

	// Points within the same thousandth share a cell.
	assert.Equal(t, CellID(-37.81301, 144.96301), CellID(-37.81399, 144.96399))
}

func TestCoordinates_Valid(t *testing.T) {
	assert.True(t, Coordinates{Lat: -37.8, Lon: 144.9}.Valid())
	assert.False(t, Coordinates{Lat: 91, Lon: 0}.Valid())
	assert.False(t, Coordinates{Lat: 0, Lon: -181}.Valid())
	assert.False(t, Coordinates{Lat: math.NaN(), Lon: 0}.Valid())
	assert.False(t, Coordinates{Lat: 0, Lon: math.Inf(-1)}.Valid())
}

func TestObservation_Classify(t *testing.T) {
	f := Float64Ptr
	tests := []struct {
		name string
		obs  Observation
		want *AtmosphereCode
	}{
		{"empty", Observation{}, nil},
		{"calm and dry", Observation{WindSpeed: f(10), Precipitation: f(0), Temperature: f(18)}, Atmosphere(AtmosphereClear)},
		{"strong wind beats rain", Observation{WindSpeed: f(40), Precipitation: f(3)}, Atmosphere(AtmosphereStrongWinds)},
		{"rain", Observation{WindSpeed: f(12), Precipitation: f(0.4), Temperature: f(9)}, Atmosphere(AtmosphereRaining)},
		{"rain without temperature", Observation{Precipitation: f(1)}, Atmosphere(AtmosphereRaining)},
		{"freezing precipitation", Observation{Precipitation: f(1), Temperature: f(0)}, Atmosphere(AtmosphereSnowing)},
		{"cold and dry", Observation{Precipitation: f(0), Temperature: f(-3)}, Atmosphere(AtmosphereClear)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.obs.Classify())
		})
	}
}
