package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/station-table-service/internal/domain"
	"github.com/couchcryptid/station-table-service/internal/table"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StationReader is the read side of the station table.
type StationReader interface {
	sharedobs.ReadinessChecker
	Get(stationID int64) (domain.TransformedStation, bool, error)
	Snapshot() ([]domain.TransformedStation, error)
}

// Server exposes health, readiness, metrics, and station query endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, and /stations routes.
func NewServer(addr string, stations StationReader, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(stations))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /stations", s.handleListStations(stations))
	mux.HandleFunc("GET /stations/{id}", s.handleGetStation(stations))

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

func (s *Server) handleGetStation(stations StationReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "station id must be an integer")
			return
		}

		station, ok, err := stations.Get(id)
		if err != nil {
			s.writeTableError(w, err)
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, "station not found")
			return
		}
		writeJSON(w, http.StatusOK, station)
	}
}

func (s *Server) handleListStations(stations StationReader) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		rows, err := stations.Snapshot()
		if err != nil {
			s.writeTableError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"count":    len(rows),
			"stations": rows,
		})
	}
}

func (s *Server) writeTableError(w http.ResponseWriter, err error) {
	if errors.Is(err, table.ErrNotReady) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.logger.Error("station query failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
