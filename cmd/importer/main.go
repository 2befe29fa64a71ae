// Command importer loads the historical incident dataset from CSV exports
// into the SQLite database the server scores against. Existing dataset rows
// are replaced.
//
// Usage:
//
//	go run ./cmd/importer \
//	  -incidents data/incidents.csv \
//	  -atmosphere data/atmosphere.csv \
//	  -surface data/surface.csv
//
// The database path comes from DATABASE_PATH unless -db is given.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/ride-hazard-service/internal/adapter/sqlite"
	"github.com/couchcryptid/ride-hazard-service/internal/config"
	"github.com/couchcryptid/ride-hazard-service/internal/domain"
	"github.com/couchcryptid/ride-hazard-service/internal/observability"
)

func main() {
	if err := run(); err != nil {
		slog.Error("import failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dbPath := flag.String("db", cfg.DatabasePath, "SQLite database path")
	incidentsPath := flag.String("incidents", "", "CSV of historical incidents (required)")
	atmospherePath := flag.String("atmosphere", "", "CSV of atmosphere conditions")
	surfacePath := flag.String("surface", "", "CSV of road surface conditions")
	flag.Parse()

	if *incidentsPath == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -incidents")
	}

	logger := observability.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	records, err := readFile(*incidentsPath, parseIncidents, logger)
	if err != nil {
		return err
	}
	atmos, err := readOptional(*atmospherePath, logger)
	if err != nil {
		return err
	}
	surfaces, err := readOptional(*surfacePath, logger)
	if err != nil {
		return err
	}

	db, err := sqlite.Open(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	store := sqlite.NewDatasetStore(db, logger)
	if err := store.Import(ctx, records, atmos, surfaces); err != nil {
		return err
	}

	logger.Info("dataset imported",
		"db", *dbPath,
		"incidents", len(records),
		"atmosphere", len(atmos),
		"surface", len(surfaces),
	)
	return nil
}

func readFile[T any](path string, parse func(io.Reader) ([]T, parseStats, error), logger *slog.Logger) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	rows, stats, err := parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if stats.skipped > 0 {
		logger.Warn("skipped unreadable rows", "file", path, "skipped", stats.skipped)
	}
	return rows, nil
}

func readOptional(path string, logger *slog.Logger) ([]domain.Condition, error) {
	if path == "" {
		return nil, nil
	}
	return readFile(path, parseConditions, logger)
}
