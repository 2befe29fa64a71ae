// Package http serves the rider-facing API alongside health, readiness, and
// metrics endpoints.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/ride-hazard-service/internal/domain"
	"github.com/couchcryptid/ride-hazard-service/internal/kvstore"
	"github.com/couchcryptid/ride-hazard-service/internal/weather"
)

const maxBodyBytes = 1 << 16

// Aggregator is the part of aggregator.Service the API drives.
type Aggregator interface {
	sharedobs.ReadinessChecker
	Snapshot() (domain.Snapshot, bool)
	TriggerNow(reason string)
	SetVisible(visible bool)
}

// RiskService answers risk queries; weather.Synthesizer implements it.
type RiskService interface {
	Refresh(ctx context.Context, lat, lon float64) (weather.Response, error)
}

// Server exposes the API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	agg        Aggregator
	risk       RiskService
	kv         kvstore.Store
	logger     *slog.Logger
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(addr string, agg Aggregator, risk RiskService, kv kvstore.Store, logger *slog.Logger) *Server {
	router := mux.NewRouter()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 20 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		agg:    agg,
		risk:   risk,
		kv:     kv,
		logger: logger,
	}

	router.Use(s.logRequests)

	router.HandleFunc("/healthz", sharedobs.LivenessHandler()).Methods(http.MethodGet)
	router.HandleFunc("/readyz", sharedobs.ReadinessHandler(agg)).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/alerts", s.handleAlerts).Methods(http.MethodGet)
	api.HandleFunc("/risk", s.handleRisk).Methods(http.MethodGet)
	api.HandleFunc("/location", s.handleLocation).Methods(http.MethodPost)
	api.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/visibility", s.handleVisibility).Methods(http.MethodPost)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type alertsResponse struct {
	OK        bool                 `json:"ok"`
	Alerts    []domain.AlertRecord `json:"alerts"`
	Total     int                  `json:"total"`
	UpdatedAt *time.Time           `json:"updatedAt"`
}

func (s *Server) handleAlerts(w http.ResponseWriter, _ *http.Request) {
	resp := alertsResponse{OK: true, Alerts: []domain.AlertRecord{}}
	if snap, ok := s.agg.Snapshot(); ok {
		if snap.Alerts != nil {
			resp.Alerts = snap.Alerts
		}
		resp.Total = snap.Total
		updated := snap.UpdatedAt
		resp.UpdatedAt = &updated
	}
	sharedobs.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
	if errLat != nil || errLon != nil {
		writeError(w, http.StatusBadRequest, "lat and lon query parameters are required")
		return
	}

	resp, err := s.risk.Refresh(r.Context(), lat, lon)
	if errors.Is(err, weather.ErrInvalidCoordinates) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("risk query failed", "lat", lat, "lon", lon, "error", err)
		writeError(w, http.StatusInternalServerError, "risk query failed")
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Lat *float64 `json:"lat"`
		Lon *float64 `json:"lon"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Lat == nil || body.Lon == nil {
		writeError(w, http.StatusBadRequest, "lat and lon are required")
		return
	}
	coords := domain.Coordinates{Lat: *body.Lat, Lon: *body.Lon}
	if !coords.Valid() {
		writeError(w, http.StatusBadRequest, weather.ErrInvalidCoordinates.Error())
		return
	}

	// The aggregator watches last_coords, so this also starts a cycle.
	if err := kvstore.SetJSON(r.Context(), s.kv, kvstore.KeyLastCoords, coords); err != nil {
		s.logger.Error("store location failed", "error", err)
		writeError(w, http.StatusInternalServerError, "store location failed")
		return
	}
	sharedobs.WriteJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	s.agg.TriggerNow("api")
	sharedobs.WriteJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Visible *bool `json:"visible"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Visible == nil {
		writeError(w, http.StatusBadRequest, "visible is required")
		return
	}
	s.agg.SetVisible(*body.Visible)
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "visible": *body.Visible})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	sharedobs.WriteJSON(w, status, map[string]any{"ok": false, "error": msg})
}
