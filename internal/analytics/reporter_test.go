package analytics

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_ReportFullDrops(t *testing.T) {
	m := testMetrics()
	q := NewQueue(testLogger(), openTestDB(t), QueueConfig{Size: 1, SamplePercent: 100}, m)
	ctx := context.Background()

	require.NoError(t, q.Report(ctx, Event{Type: HitEvent, Category: "power", Action: "screen_on"}))
	err := q.Report(ctx, Event{Type: HitEvent, Category: "power", Action: "screen_off"})
	require.ErrorIs(t, err, ErrQueueFull)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReportsDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReportsQueued.WithLabelValues("event")))
}

func TestQueue_ReportCanceledContext(t *testing.T) {
	q := NewQueue(testLogger(), openTestDB(t), QueueConfig{Size: 4, SamplePercent: 100}, testMetrics())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, q.Report(ctx, Event{Type: HitEvent}), context.Canceled)
}

func TestQueue_RunStoresAndDrainsOnShutdown(t *testing.T) {
	db := openTestDB(t)
	q := NewQueue(testLogger(), db, QueueConfig{Size: 8, SamplePercent: 100}, testMetrics())

	when := time.Unix(1700000000, 0)
	require.NoError(t, q.Report(context.Background(), Event{
		Type: HitEvent, Time: when, Category: "power_usage", Action: "discharge_screen_on",
		Label: "100", Value: Int64(100), Sampled: true,
	}))
	require.NoError(t, q.Report(context.Background(), Event{Type: HitLog, Logs: map[string]string{"k": "v"}}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, q.Run(ctx))

	rows, err := db.PendingOutbox(nil, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "event", rows[0].Kind)
	assert.Equal(t, when.Unix(), rows[0].CreatedAt)
	assert.Equal(t, "log", rows[1].Kind)

	var got Event
	require.NoError(t, json.Unmarshal(rows[0].Payload, &got))
	assert.Equal(t, "discharge_screen_on", got.Action)
	require.NotNil(t, got.Value)
	assert.Equal(t, int64(100), *got.Value)
}

func TestQueue_Sampling(t *testing.T) {
	db := openTestDB(t)
	m := testMetrics()
	q := NewQueue(testLogger(), db, QueueConfig{Size: 8, SamplePercent: 10}, m)

	rolls := []float64{0.05, 0.5}
	q.roll = func() float64 {
		r := rolls[0]
		rolls = rolls[1:]
		return r
	}

	q.store(Event{Type: HitEvent, Action: "kept", Sampled: true})
	q.store(Event{Type: HitEvent, Action: "dropped", Sampled: true})
	q.store(Event{Type: HitEvent, Action: "unsampled"})

	rows, err := db.PendingOutbox(nil, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReportsSampledOut))
	assert.Empty(t, rolls)
}
