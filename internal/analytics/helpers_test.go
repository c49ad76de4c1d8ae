package analytics

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/cptspacemanspiff/power-analytics/internal/metrics"
	"github.com/cptspacemanspiff/power-analytics/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMetrics() *metrics.Metrics {
	return metrics.NewMetrics(prometheus.NewRegistry())
}

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type recordingSender struct {
	batches [][]Event
	err     error
}

func (r *recordingSender) Send(_ context.Context, hits []Event) error {
	if r.err != nil {
		return r.err
	}
	r.batches = append(r.batches, hits)
	return nil
}

func (r *recordingSender) total() int {
	n := 0
	for _, b := range r.batches {
		n += len(b)
	}
	return n
}
