// Package incident turns official incident-feed features into alert records.
//
// Feeds carry arbitrary property bags. Properties extracts a fixed set of
// optional fields, each from the first non-empty of a documented list of
// candidate property names.
package incident

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/ride-hazard-service/internal/geo"
)

// Candidate property names, in priority order.
var (
	idKeys          = []string{"id", "incident_id", "incidentId", "event_id", "eventId", "guid", "OBJECTID", "objectid"}
	typeKeys        = []string{"incident_type", "incidentType", "type", "event_type", "category"}
	severityKeys    = []string{"severity", "impact", "priority", "level"}
	descriptionKeys = []string{"description", "details", "summary", "title", "headline"}
	addressKeys     = []string{"address", "location", "road", "street", "road_name"}
	timestampKeys   = []string{"updated", "updated_at", "last_updated", "created", "created_at", "timestamp", "start"}
)

// Properties is the typed subset of a feature's property bag.
type Properties struct {
	ID          string
	Type        string
	Severity    string
	Description string
	Address     string
	Timestamp   time.Time // zero when absent or unparseable
}

// ParseProperties extracts Properties from f. The feature's top-level id
// takes precedence over any id-like property.
func ParseProperties(f geo.Feature) Properties {
	p := Properties{
		ID:          f.ID,
		Type:        firstString(f.Properties, typeKeys),
		Severity:    firstString(f.Properties, severityKeys),
		Description: firstString(f.Properties, descriptionKeys),
		Address:     firstString(f.Properties, addressKeys),
	}
	if p.ID == "" {
		p.ID = firstString(f.Properties, idKeys)
	}
	for _, key := range timestampKeys {
		if ts, ok := parseTimestamp(f.Properties[key]); ok {
			p.Timestamp = ts
			break
		}
	}
	return p
}

func firstString(props map[string]json.RawMessage, keys []string) string {
	for _, key := range keys {
		if s := strings.TrimSpace(geo.ScalarString(props[key])); s != "" {
			return s
		}
	}
	return ""
}

// Epoch values above this are taken to be milliseconds (year 2286 in
// seconds).
const millisecondCutoff = 1e10

func parseTimestamp(raw json.RawMessage) (time.Time, bool) {
	s := strings.TrimSpace(geo.ScalarString(raw))
	if s == "" {
		return time.Time{}, false
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		if n <= 0 {
			return time.Time{}, false
		}
		if n > millisecondCutoff {
			return time.UnixMilli(int64(n)), true
		}
		return time.Unix(int64(n), 0), true
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
