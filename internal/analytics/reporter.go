package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/cptspacemanspiff/power-analytics/internal/metrics"
	"github.com/cptspacemanspiff/power-analytics/internal/storage"
)

// Reporter accepts analytics hits. Report never blocks on I/O.
type Reporter interface {
	Report(ctx context.Context, e Event) error
}

// Outbox persists hits for later upload.
type Outbox interface {
	Enqueue(e storage.OutboxEntry) (int64, error)
}

// QueueConfig configures a Queue.
type QueueConfig struct {
	Size          int
	SamplePercent int
}

// Queue is a Reporter backed by a bounded channel. A single worker started
// with Run applies sampling and writes hits to the outbox.
type Queue struct {
	ch            chan Event
	out           Outbox
	samplePercent int
	roll          func() float64
	metrics       *metrics.Metrics
	log           *slog.Logger
}

// NewQueue creates a queue. Call Run to start draining it.
func NewQueue(logger *slog.Logger, out Outbox, cfg QueueConfig, m *metrics.Metrics) *Queue {
	size := cfg.Size
	if size <= 0 {
		size = 1
	}
	return &Queue{
		ch:            make(chan Event, size),
		out:           out,
		samplePercent: cfg.SamplePercent,
		roll:          rand.Float64,
		metrics:       m,
		log:           logger,
	}
}

// Report enqueues e. It returns ErrQueueFull when the queue is at capacity.
func (q *Queue) Report(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	select {
	case q.ch <- e:
		q.metrics.ReportsQueued.WithLabelValues(string(e.Type)).Inc()
		return nil
	default:
		q.metrics.ReportsDropped.Inc()
		q.log.Warn("report queue full, dropping hit", "type", e.Type, "category", e.Category, "action", e.Action)
		return ErrQueueFull
	}
}

// Run drains the queue until ctx is done. Hits still buffered at shutdown are
// written before returning.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case e := <-q.ch:
			q.store(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-q.ch:
					q.store(e)
				default:
					return nil
				}
			}
		}
	}
}

func (q *Queue) keep(e Event) bool {
	if !e.Sampled || q.samplePercent >= 100 {
		return true
	}
	return q.roll()*100 < float64(q.samplePercent)
}

func (q *Queue) store(e Event) {
	if !q.keep(e) {
		q.metrics.ReportsSampledOut.Inc()
		return
	}
	payload, err := json.Marshal(e)
	if err != nil {
		q.log.Warn("encode hit", "err", err)
		return
	}
	_, err = q.out.Enqueue(storage.OutboxEntry{
		CreatedAt: e.Time.Unix(),
		Kind:      string(e.Type),
		Payload:   payload,
	})
	if err != nil {
		q.log.Warn("enqueue hit", "err", fmt.Errorf("outbox: %w", err))
		return
	}
	q.log.Debug("hit stored", "type", e.Type, "category", e.Category, "action", e.Action)
}
