package admin

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cptspacemanspiff/power-analytics/internal/metrics"
	"github.com/cptspacemanspiff/power-analytics/internal/storage"
)

func newTestServer(t *testing.T) (*Server, *storage.DB, *metrics.Metrics) {
	t.Helper()

	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	srv := NewServer(slog.New(slog.NewTextHandler(io.Discard, nil)), db, reg)
	srv.now = func() time.Time { return time.Unix(10_000, 0) }
	return srv, db, m
}

func get(t *testing.T, srv *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	srv, db, _ := newTestServer(t)
	_, err := db.Enqueue(storage.OutboxEntry{CreatedAt: 1, Kind: "event", Payload: []byte(`{}`)})
	require.NoError(t, err)

	rec := get(t, srv, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 1, body.PendingHits)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, m := newTestServer(t)
	m.Observations.Inc()

	rec := get(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "power_analytics_observations_total 1")
}

func TestDischarge(t *testing.T) {
	srv, db, _ := newTestServer(t)
	require.NoError(t, db.InsertDischargeEvent(storage.DischargeRecord{
		Timestamp: 9_000, Action: "discharge_screen_off", Rate: 42, IntervalSecs: 3600, Drop: 1.2,
	}))
	require.NoError(t, db.InsertDischargeEvent(storage.DischargeRecord{
		Timestamp: 100, Action: "discharge_screen_on", Rate: 7, IntervalSecs: 3600, Drop: 0.1,
	}))

	t.Run("default window is the last day", func(t *testing.T) {
		rec := get(t, srv, "/v1/discharge")
		require.Equal(t, http.StatusOK, rec.Code)
		var events []storage.DischargeRecord
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
		require.Len(t, events, 2)
	})

	t.Run("explicit range", func(t *testing.T) {
		rec := get(t, srv, "/v1/discharge?from=5000&to=10000")
		require.Equal(t, http.StatusOK, rec.Code)
		var events []storage.DischargeRecord
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
		require.Len(t, events, 1)
		assert.Equal(t, int64(42), events[0].Rate)
	})

	t.Run("empty range is an empty array", func(t *testing.T) {
		rec := get(t, srv, "/v1/discharge?from=20000&to=30000")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
	})
}

func TestDischarge_InvalidRanges(t *testing.T) {
	srv, _, _ := newTestServer(t)

	tests := []struct {
		name   string
		target string
	}{
		{"not a number", "/v1/discharge?from=abc"},
		{"negative from", "/v1/discharge?from=-1&to=0"},
		{"to before from", "/v1/discharge?from=10&to=9"},
		{"range too large", "/v1/discharge?from=0&to=31622400"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, srv, tt.target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "error")
		})
	}
}

func TestObservations(t *testing.T) {
	srv, db, _ := newTestServer(t)
	require.NoError(t, db.InsertObservation(storage.Observation{Timestamp: 9_500, ElapsedMs: 1000, Percentage: 80, ScreenOn: true}))

	rec := get(t, srv, "/v1/observations?from=9000&to=10000")
	require.Equal(t, http.StatusOK, rec.Code)

	var obs []storage.Observation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &obs))
	require.Len(t, obs, 1)
	assert.InDelta(t, 80.0, obs[0].Percentage, 0.001)
	assert.True(t, obs[0].ScreenOn)

	rec = get(t, srv, "/v1/observations?from=10&to=9")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHardware(t *testing.T) {
	srv, db, _ := newTestServer(t)
	require.NoError(t, db.SetHardwareInfo("gpu_renderer", "i915 (8086:46a6)", 5))

	rec := get(t, srv, "/v1/hardware")
	require.Equal(t, http.StatusOK, rec.Code)

	var facts []storage.HardwareRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &facts))
	require.Len(t, facts, 1)
	assert.Equal(t, "i915 (8086:46a6)", facts[0].Value)
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
