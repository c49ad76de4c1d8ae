// Package admin serves the local operator HTTP endpoint: Prometheus metrics,
// a health check and read-only views of stored observations.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cptspacemanspiff/power-analytics/internal/storage"
)

const maxQueryRange = 365 * 24 * 60 * 60

const shutdownTimeout = 5 * time.Second

// Store is the read side served over HTTP.
type Store interface {
	ObservationsInRange(from, to int64) ([]storage.Observation, error)
	DischargeEventsInRange(from, to int64) ([]storage.DischargeRecord, error)
	AllHardwareInfo() ([]storage.HardwareRecord, error)
	PendingCount() (int, error)
}

// Server is the admin HTTP server.
type Server struct {
	log      *slog.Logger
	store    Store
	registry *prometheus.Registry
	now      func() time.Time
}

// NewServer creates a server reading from store and exposing registry.
func NewServer(logger *slog.Logger, store Store, registry *prometheus.Registry) *Server {
	return &Server{log: logger, store: store, registry: registry, now: time.Now}
}

// Router returns the request router.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	r.HandleFunc("/v1/discharge", s.discharge).Methods(http.MethodGet)
	r.HandleFunc("/v1/observations", s.observations).Methods(http.MethodGet)
	r.HandleFunc("/v1/hardware", s.hardware).Methods(http.MethodGet)
	return r
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("admin server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("admin server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown admin server: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin server: %w", err)
		}
		return nil
	}
}

type healthResponse struct {
	Status      string `json:"status"`
	PendingHits int    `json:"pending_hits"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	pending, err := s.store.PendingCount()
	if err != nil {
		s.log.Warn("health check failed", "err", err)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", PendingHits: pending})
}

// timeRange reads ?from=&to= in Unix seconds. Both default to the last day.
// It writes a 400 and returns false on bad input.
func (s *Server) timeRange(w http.ResponseWriter, r *http.Request) (from, to int64, ok bool) {
	now := s.now().Unix()
	from, err := queryInt(r, "from", max(now-24*60*60, 0))
	if err == nil {
		to, err = queryInt(r, "to", now)
	}
	if err == nil {
		err = validateRange(from, to)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, 0, false
	}
	return from, to, true
}

func (s *Server) discharge(w http.ResponseWriter, r *http.Request) {
	from, to, ok := s.timeRange(w, r)
	if !ok {
		return
	}

	events, err := s.store.DischargeEventsInRange(from, to)
	if err != nil {
		s.log.Error("query discharge events", "err", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if events == nil {
		events = []storage.DischargeRecord{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) observations(w http.ResponseWriter, r *http.Request) {
	from, to, ok := s.timeRange(w, r)
	if !ok {
		return
	}

	obs, err := s.store.ObservationsInRange(from, to)
	if err != nil {
		s.log.Error("query observations", "err", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if obs == nil {
		obs = []storage.Observation{}
	}
	writeJSON(w, http.StatusOK, obs)
}

func (s *Server) hardware(w http.ResponseWriter, _ *http.Request) {
	facts, err := s.store.AllHardwareInfo()
	if err != nil {
		s.log.Error("query hardware info", "err", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if facts == nil {
		facts = []storage.HardwareRecord{}
	}
	writeJSON(w, http.StatusOK, facts)
}

func queryInt(r *http.Request, name string, def int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return v, nil
}

func validateRange(from, to int64) error {
	if from < 0 {
		return fmt.Errorf("from must not be negative")
	}
	if to < from {
		return fmt.Errorf("to must not be before from")
	}
	if to-from > maxQueryRange {
		return fmt.Errorf("range exceeds %d seconds", maxQueryRange)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
