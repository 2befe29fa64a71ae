package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/couchcryptid/ride-hazard-service/internal/domain"
)

// Accepted header names per column, compared case-insensitively. The upper
// case forms match the state crash-statistics export.
var (
	idCols        = []string{"id", "accident_no", "incident_id"}
	latCols       = []string{"latitude", "lat"}
	lonCols       = []string{"longitude", "lon", "lng"}
	hourCols      = []string{"hour"}
	monthCols     = []string{"month"}
	dayOfWeekCols = []string{"day_of_week", "dow"}
	codeCols      = []string{"code", "atmosph_cond", "surface_cond"}
)

// parseStats counts rows kept and skipped while reading one file.
type parseStats struct {
	rows    int
	skipped int
}

type header map[string]int

func readHeader(r *csv.Reader) (header, error) {
	cols, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	h := make(header, len(cols))
	for i, c := range cols {
		h[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(c, "\uFEFF")))] = i
	}
	return h, nil
}

func (h header) index(names []string) (int, bool) {
	for _, n := range names {
		if i, ok := h[n]; ok {
			return i, true
		}
	}
	return 0, false
}

func (h header) require(names ...[]string) ([]int, error) {
	idx := make([]int, len(names))
	for i, alts := range names {
		j, ok := h.index(alts)
		if !ok {
			return nil, fmt.Errorf("missing column %q", alts[0])
		}
		idx[i] = j
	}
	return idx, nil
}

func field(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// parseIncidents reads historical records. Rows with an unreadable time
// bucket are skipped; unreadable coordinates are kept as NaN so the row
// still counts towards the dataset but never matches a query.
func parseIncidents(src io.Reader) ([]domain.HistoricalRecord, parseStats, error) {
	r := csv.NewReader(src)
	r.FieldsPerRecord = -1
	h, err := readHeader(r)
	if err != nil {
		return nil, parseStats{}, err
	}
	idx, err := h.require(idCols, latCols, lonCols, hourCols, monthCols, dayOfWeekCols)
	if err != nil {
		return nil, parseStats{}, err
	}

	var (
		records []domain.HistoricalRecord
		stats   parseStats
	)
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("read row %d: %w", stats.rows+stats.skipped+2, err)
		}

		id := field(row, idx[0])
		hour, errH := strconv.Atoi(field(row, idx[3]))
		month, errM := strconv.Atoi(field(row, idx[4]))
		dow, errD := strconv.Atoi(field(row, idx[5]))
		if id == "" || errH != nil || errM != nil || errD != nil ||
			hour < 0 || hour > 23 || month < 1 || month > 12 || dow < 0 || dow > 6 {
			stats.skipped++
			continue
		}

		records = append(records, domain.HistoricalRecord{
			ID:        id,
			Lat:       parseCoord(field(row, idx[1])),
			Lon:       parseCoord(field(row, idx[2])),
			Hour:      hour,
			Month:     month,
			DayOfWeek: dow,
		})
		stats.rows++
	}
	return records, stats, nil
}

// parseConditions reads a condition side table (atmosphere or surface).
func parseConditions(src io.Reader) ([]domain.Condition, parseStats, error) {
	r := csv.NewReader(src)
	r.FieldsPerRecord = -1
	h, err := readHeader(r)
	if err != nil {
		return nil, parseStats{}, err
	}
	idx, err := h.require(idCols, codeCols)
	if err != nil {
		return nil, parseStats{}, err
	}

	var (
		conds []domain.Condition
		stats parseStats
	)
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("read row %d: %w", stats.rows+stats.skipped+2, err)
		}

		id := field(row, idx[0])
		code, err := strconv.Atoi(field(row, idx[1]))
		if id == "" || err != nil {
			stats.skipped++
			continue
		}
		conds = append(conds, domain.Condition{RecordID: id, Code: code})
		stats.rows++
	}
	return conds, stats, nil
}

func parseCoord(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
