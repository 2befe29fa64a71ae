package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"

	"github.com/couchcryptid/ride-hazard-service/internal/domain"
	"github.com/couchcryptid/ride-hazard-service/internal/risk"
)

// DatasetStore reads and writes the historical incident tables.
type DatasetStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewDatasetStore returns a store over a database opened with Open.
func NewDatasetStore(db *sql.DB, logger *slog.Logger) *DatasetStore {
	return &DatasetStore{db: db, logger: logger}
}

// LoadDataset reads every historical record and both condition side tables.
// NULL or non-numeric coordinates load as NaN so the scorer excludes them.
func (s *DatasetStore) LoadDataset(ctx context.Context) (*risk.Dataset, error) {
	records, err := s.loadRecords(ctx)
	if err != nil {
		return nil, err
	}
	atmos, err := s.loadConditions(ctx, "atmospheric_conditions")
	if err != nil {
		return nil, err
	}
	surfaces, err := s.loadConditions(ctx, "road_surface_conditions")
	if err != nil {
		return nil, err
	}

	s.logger.Info("historical dataset loaded",
		"records", len(records),
		"atmospheric_conditions", len(atmos),
		"road_surface_conditions", len(surfaces),
	)
	return risk.NewDataset(records, atmos, surfaces), nil
}

func (s *DatasetStore) loadRecords(ctx context.Context) ([]domain.HistoricalRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,
			CASE WHEN typeof(latitude) IN ('real', 'integer') THEN latitude END,
			CASE WHEN typeof(longitude) IN ('real', 'integer') THEN longitude END,
			hour, month, day_of_week
		FROM incidents`)
	if err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	var out []domain.HistoricalRecord
	for rows.Next() {
		var (
			rec      domain.HistoricalRecord
			lat, lon sql.NullFloat64
		)
		if err := rows.Scan(&rec.ID, &lat, &lon, &rec.Hour, &rec.Month, &rec.DayOfWeek); err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		rec.Lat = nullToNaN(lat)
		rec.Lon = nullToNaN(lon)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}
	return out, nil
}

func (s *DatasetStore) loadConditions(ctx context.Context, table string) ([]domain.Condition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT incident_id, code FROM `+table) //nolint:gosec // table name is a package constant
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var out []domain.Condition
	for rows.Next() {
		var c domain.Condition
		if err := rows.Scan(&c.RecordID, &c.Code); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return out, nil
}

// Import replaces the dataset with the given records and side tables in a
// single transaction.
func (s *DatasetStore) Import(ctx context.Context, records []domain.HistoricalRecord, atmos, surfaces []domain.Condition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, table := range []string{"incidents", "atmospheric_conditions", "road_surface_conditions"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil { //nolint:gosec // constant table names
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO incidents (id, latitude, longitude, hour, month, day_of_week) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare incidents insert: %w", err)
	}
	defer stmt.Close()
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.ID, nanToNull(r.Lat), nanToNull(r.Lon), r.Hour, r.Month, r.DayOfWeek); err != nil {
			return fmt.Errorf("insert incident %s: %w", r.ID, err)
		}
	}

	if err := insertConditions(ctx, tx, "atmospheric_conditions", atmos); err != nil {
		return err
	}
	if err := insertConditions(ctx, tx, "road_surface_conditions", surfaces); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	s.logger.Info("historical dataset imported",
		"records", len(records),
		"atmospheric_conditions", len(atmos),
		"road_surface_conditions", len(surfaces),
	)
	return nil
}

func insertConditions(ctx context.Context, tx *sql.Tx, table string, conds []domain.Condition) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+table+` (incident_id, code) VALUES (?, ?)`) //nolint:gosec // constant table names
	if err != nil {
		return fmt.Errorf("prepare %s insert: %w", table, err)
	}
	defer stmt.Close()
	for _, c := range conds {
		if _, err := stmt.ExecContext(ctx, c.RecordID, c.Code); err != nil {
			return fmt.Errorf("insert %s for %s: %w", table, c.RecordID, err)
		}
	}
	return nil
}

func nullToNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func nanToNull(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}
