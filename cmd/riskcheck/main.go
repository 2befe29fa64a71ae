// Command riskcheck scores one place and time against the imported
// historical dataset and prints the result. It is the offline counterpart of
// GET /api/risk and is handy for checking an import.
//
// Usage:
//
//	go run ./cmd/riskcheck -lat -37.8136 -lon 144.9631 \
//	  -time 2024-03-12T08:15:00+11:00 -weather 2 -surface 1
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/couchcryptid/ride-hazard-service/internal/adapter/sqlite"
	"github.com/couchcryptid/ride-hazard-service/internal/config"
	"github.com/couchcryptid/ride-hazard-service/internal/domain"
	"github.com/couchcryptid/ride-hazard-service/internal/observability"
	"github.com/couchcryptid/ride-hazard-service/internal/risk"
	"github.com/couchcryptid/ride-hazard-service/internal/weather"
)

type options struct {
	lat, lon float64
	at       time.Time
	weather  *domain.AtmosphereCode
	surface  *domain.SurfaceCode
	asJSON   bool
}

// report is the JSON output.
type report struct {
	Lat          float64          `json:"lat"`
	Lon          float64          `json:"lon"`
	Time         time.Time        `json:"time"`
	Risk         domain.RiskLevel `json:"risk"`
	RiskText     string           `json:"riskText"`
	WeatherLabel string           `json:"weatherLabel"`
	Matched      int              `json:"matched"`
	Likelihood   float64          `json:"likelihood"`
	DatasetSize  int              `json:"datasetSize"`
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		os.Exit(1)
	}

	dbPath := flag.String("db", cfg.DatabasePath, "SQLite database path")
	lat := flag.Float64("lat", 0, "latitude in decimal degrees")
	lon := flag.Float64("lon", 0, "longitude in decimal degrees")
	at := flag.String("time", "", "RFC3339 time to score (default now)")
	weatherCode := flag.Int("weather", 0, "atmosphere code (1-9, 0 for unknown)")
	surfaceCode := flag.Int("surface", 0, "road surface code (1-3 or 9, 0 for unknown)")
	asJSON := flag.Bool("json", false, "print JSON instead of text")
	flag.Parse()

	opts, err := buildOptions(*lat, *lon, *at, *weatherCode, *surfaceCode, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		flag.Usage()
		os.Exit(2)
	}
	opts.asJSON = *asJSON

	logger := observability.NewLogger(cfg)
	ctx := context.Background()

	db, err := sqlite.Open(ctx, *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	dataset, err := sqlite.NewDatasetStore(db, logger).LoadDataset(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load dataset: %v\n", err)
		os.Exit(1)
	}

	if err := printReport(os.Stdout, score(opts, dataset), opts.asJSON); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
}

func buildOptions(lat, lon float64, at string, weatherCode, surfaceCode int, now time.Time) (options, error) {
	opts := options{lat: lat, lon: lon, at: now}
	if !(domain.Coordinates{Lat: lat, Lon: lon}).Valid() {
		return opts, fmt.Errorf("invalid coordinates %v,%v", lat, lon)
	}
	if at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return opts, fmt.Errorf("invalid -time: %w", err)
		}
		opts.at = t
	}
	if weatherCode != 0 {
		opts.weather = domain.Atmosphere(domain.AtmosphereCode(weatherCode))
	}
	if surfaceCode != 0 {
		opts.surface = domain.Surface(domain.SurfaceCode(surfaceCode))
	}
	return opts, nil
}

func score(opts options, dataset *risk.Dataset) report {
	ctx := domain.NewContext(opts.lat, opts.lon, opts.at).
		WithWeather(opts.weather).
		WithSurface(opts.surface)
	res := risk.Score(ctx, dataset)

	return report{
		Lat:          opts.lat,
		Lon:          opts.lon,
		Time:         opts.at,
		Risk:         res.Level,
		RiskText:     weather.RiskText(res.Level, res.WeatherLabel),
		WeatherLabel: res.WeatherLabel,
		Matched:      res.Matched,
		Likelihood:   res.Likelihood,
		DatasetSize:  dataset.Len(),
	}
}

func printReport(w io.Writer, r report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	fmt.Fprintf(w, "Location:   %.5f, %.5f\n", r.Lat, r.Lon)
	fmt.Fprintf(w, "Time:       %s\n", r.Time.Format("Mon 2006-01-02 15:04 MST"))
	fmt.Fprintf(w, "Weather:    %s\n", r.WeatherLabel)
	if r.DatasetSize == 0 {
		fmt.Fprintln(w, "Dataset:    empty (weather heuristic)")
	} else {
		fmt.Fprintf(w, "Dataset:    %d records, %d matched (likelihood %.6f)\n", r.DatasetSize, r.Matched, r.Likelihood)
	}
	_, err := fmt.Fprintf(w, "Risk:       %s\n", r.RiskText)
	return err
}
