// Package domain models the rider-facing hazard data: risk queries against
// historical road-crash records, and the alert records merged from live feeds.
//
// # Historical Data Conventions
//
// Historical records come from a state road-crash dataset. Each record has a
// position, the hour (0–23), month (1–12), and weekday (Sunday = 0) of the
// crash. Atmospheric and road-surface conditions live in separate side tables
// keyed by record ID; a record may have neither.
//
// Atmosphere codes:
//
//	1 Clear | 2 Raining | 3 Snowing | 4 Fog | 5 Smoke | 6 Dust
//	7 Strong winds | 9 Not known
//
// Any other value, or no value, is labelled "Unknown".
//
// Road-surface codes:
//
//	1 Paved | 2 Unpaved | 3 Gravel | 9 Not known
//
// # Alert Identity
//
// An alert's ClusterID is its identity across polls and sources. Sources
// build it as follows:
//
//	Backend clusters: supplied by the backend unchanged.
//	Weather alerts:   "weather#" + cell, cell = floor(lat, 3dp) + "_" + floor(lon, 3dp),
//	                  e.g. "weather#-37.814_144.963".
//	Incident feeds:   "<feed>#<feature id>", or "<feed>#<lat>_<lon>_<unix>" with
//	                  4dp coordinates when the feature has no id.
//
// ExpiresAt is an absolute Unix time in seconds. A record is live while
// ExpiresAt > now; at or after that instant it is dropped.
//
// # Risk Levels
//
// RiskLevel is ordered LOW < MEDIUM < HIGH and serializes as its upper-case
// name.
package domain
