package domain

// AtmosphereCode is the atmospheric condition recorded against a historical
// incident, using the road-crash dataset's coding.
type AtmosphereCode int

const (
	AtmosphereClear       AtmosphereCode = 1
	AtmosphereRaining     AtmosphereCode = 2
	AtmosphereSnowing     AtmosphereCode = 3
	AtmosphereFog         AtmosphereCode = 4
	AtmosphereSmoke       AtmosphereCode = 5
	AtmosphereDust        AtmosphereCode = 6
	AtmosphereStrongWinds AtmosphereCode = 7
	AtmosphereNotKnown    AtmosphereCode = 9
)

var atmosphereLabels = map[AtmosphereCode]string{
	AtmosphereClear:       "Clear",
	AtmosphereRaining:     "Raining",
	AtmosphereSnowing:     "Snowing",
	AtmosphereFog:         "Fog",
	AtmosphereSmoke:       "Smoke",
	AtmosphereDust:        "Dust",
	AtmosphereStrongWinds: "Strong winds",
	AtmosphereNotKnown:    "Not known",
}

// UnknownWeatherLabel is returned for absent or unmapped atmosphere codes.
const UnknownWeatherLabel = "Unknown"

// WeatherLabel returns the human-readable name for code.
func WeatherLabel(code *AtmosphereCode) string {
	if code == nil {
		return UnknownWeatherLabel
	}
	if label, ok := atmosphereLabels[*code]; ok {
		return label
	}
	return UnknownWeatherLabel
}

// SurfaceCode is the road-surface condition recorded against a historical
// incident.
type SurfaceCode int

const (
	SurfacePaved    SurfaceCode = 1
	SurfaceUnpaved  SurfaceCode = 2
	SurfaceGravel   SurfaceCode = 3
	SurfaceNotKnown SurfaceCode = 9
)

// Atmosphere returns a pointer to c, for building optional context fields.
func Atmosphere(c AtmosphereCode) *AtmosphereCode { return &c }

// Surface returns a pointer to c, for building optional context fields.
func Surface(c SurfaceCode) *SurfaceCode { return &c }

// Observation is a current-weather reading. Fields are nil when the provider
// did not report them.
type Observation struct {
	WindSpeed     *float64 `json:"windSpeed,omitempty"`     // km/h
	Precipitation *float64 `json:"precipitation,omitempty"` // mm
	Temperature   *float64 `json:"temperature,omitempty"`   // °C
}

// StrongWindKPH is the wind speed at or above which an observation is
// classified as strong winds.
const StrongWindKPH = 40.0

// Classify maps an observation onto an atmosphere code. It returns nil when
// the observation carries no usable reading.
func (o Observation) Classify() *AtmosphereCode {
	if o.WindSpeed == nil && o.Precipitation == nil && o.Temperature == nil {
		return nil
	}
	wet := o.Precipitation != nil && *o.Precipitation > 0
	switch {
	case o.WindSpeed != nil && *o.WindSpeed >= StrongWindKPH:
		return Atmosphere(AtmosphereStrongWinds)
	case wet && o.Temperature != nil && *o.Temperature <= 0:
		return Atmosphere(AtmosphereSnowing)
	case wet:
		return Atmosphere(AtmosphereRaining)
	default:
		return Atmosphere(AtmosphereClear)
	}
}
