package main

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/ride-hazard-service/internal/domain"
)

func TestParseIncidents(t *testing.T) {
	src := "\uFEFFACCIDENT_NO,LATITUDE,LONGITUDE,HOUR,MONTH,DAY_OF_WEEK\n" +
		"T20150001,-37.8136,144.9631,8,3,2\n" +
		"T20150002,,144.9,17,3,2\n" +
		"T20150003,-37.8,144.9,25,3,2\n" +
		",-37.8,144.9,1,1,1\n" +
		"T20150004,-37.8,144.9,x,3,2\n"

	records, stats, err := parseIncidents(strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, 2, stats.rows)
	assert.Equal(t, 3, stats.skipped)
	require.Len(t, records, 2)

	assert.Equal(t, domain.HistoricalRecord{
		ID: "T20150001", Lat: -37.8136, Lon: 144.9631, Hour: 8, Month: 3, DayOfWeek: 2,
	}, records[0])
	assert.True(t, math.IsNaN(records[1].Lat), "blank latitude loads as NaN")
	assert.InDelta(t, 144.9, records[1].Lon, 1e-9)
}

func TestParseIncidents_LowerCaseAliases(t *testing.T) {
	src := "id,lat,lng,hour,month,dow\nr1,1.5,2.5,0,12,6\n"

	records, _, err := parseIncidents(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 12, records[0].Month)
	assert.Equal(t, 6, records[0].DayOfWeek)
}

func TestParseIncidents_MissingColumn(t *testing.T) {
	_, _, err := parseIncidents(strings.NewReader("id,latitude,longitude,hour,month\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "day_of_week")
}

func TestParseIncidents_Empty(t *testing.T) {
	_, _, err := parseIncidents(strings.NewReader(""))
	assert.ErrorContains(t, err, "empty file")
}

func TestParseConditions(t *testing.T) {
	src := "ACCIDENT_NO,ATMOSPH_COND\nT1,1\nT2,7\nT3,\n,2\n"

	conds, stats, err := parseConditions(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, []domain.Condition{{RecordID: "T1", Code: 1}, {RecordID: "T2", Code: 7}}, conds)
	assert.Equal(t, 2, stats.skipped)
}

func TestParseConditions_SurfaceHeader(t *testing.T) {
	conds, _, err := parseConditions(strings.NewReader("incident_id,surface_cond\nT9,3\n"))
	require.NoError(t, err)
	require.Len(t, conds, 1)
	assert.Equal(t, int(domain.SurfaceGravel), conds[0].Code)
}
