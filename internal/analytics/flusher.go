package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	psnet "github.com/shirou/gopsutil/v4/net"

	"github.com/cptspacemanspiff/power-analytics/internal/metrics"
	"github.com/cptspacemanspiff/power-analytics/internal/storage"
)

// DefaultFlushSchedule matches the half-hour upload alarm.
const DefaultFlushSchedule = "@every 30m"

// maxRowsPerFlush bounds the rows read per destination by a single flush.
const maxRowsPerFlush = 500

// MaxAttempts is the number of failed uploads after which a row is discarded.
// With the default schedule that is one day of retries.
const MaxAttempts = 48

var (
	hitKinds = []string{string(HitEvent), string(HitScreenView), string(HitException)}
	logKinds = []string{string(HitLog)}
)

// Sender uploads a batch of hits.
type Sender interface {
	Send(ctx context.Context, hits []Event) error
}

// OutboxStore is the storage surface used by the Flusher.
type OutboxStore interface {
	PendingOutbox(kinds []string, limit int) ([]storage.OutboxEntry, error)
	PendingCount() (int, error)
	MarkSent(ids []int64, at int64) error
	MarkFailed(ids []int64) error
	DiscardExhausted(maxAttempts int) (int64, error)
	SetPrefInt(key string, value int64) error
}

// Flusher uploads pending outbox rows. Hits go to Google Analytics, general
// logs to the log server. Concurrent Flush calls are serialized.
type Flusher struct {
	mu        sync.Mutex
	store     OutboxStore
	hits      Sender
	logs      Sender
	batchSize int
	networkUp func(ctx context.Context) bool
	now       func() time.Time
	metrics   *metrics.Metrics
	log       *slog.Logger
}

// NewFlusher creates a flusher. A nil logs sender leaves log rows pending.
func NewFlusher(logger *slog.Logger, store OutboxStore, hits, logs Sender, batchSize int, m *metrics.Metrics) *Flusher {
	if batchSize <= 0 || batchSize > MaxBatchHits {
		batchSize = MaxBatchHits
	}
	return &Flusher{
		store:     store,
		hits:      hits,
		logs:      logs,
		batchSize: batchSize,
		networkUp: NetworkUp,
		now:       time.Now,
		metrics:   m,
		log:       logger,
	}
}

type pendingHit struct {
	id    int64
	event Event
}

// Flush uploads up to a bounded number of pending rows. Rows that fail to
// upload stay pending for the next flush. It is a no-op while the network
// is down.
func (f *Flusher) Flush(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.networkUp(ctx) {
		f.log.Debug("network down, skipping flush")
		return nil
	}

	var errs []error
	sent := false
	for _, dest := range []struct {
		name   string
		sender Sender
		kinds  []string
	}{
		{"google_analytics", f.hits, hitKinds},
		{"log_server", f.logs, logKinds},
	} {
		// Rows for a destination without a sender stay pending.
		if dest.sender == nil {
			continue
		}
		pending, err := f.pending(dest.kinds)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		n, err := f.upload(ctx, dest.name, dest.sender, pending)
		sent = sent || n > 0
		errs = append(errs, err)
	}

	if n, err := f.store.DiscardExhausted(MaxAttempts); err != nil {
		f.log.Warn("discard exhausted rows", "err", err)
	} else if n > 0 {
		f.log.Warn("discarded rows after repeated upload failures", "rows", n, "max_attempts", MaxAttempts)
		f.metrics.ReportsDropped.Add(float64(n))
	}

	if sent {
		if err := f.store.SetPrefInt(storage.PrefLatestSendTime, f.now().Unix()); err != nil {
			f.log.Warn("record send time", "err", err)
		}
	}
	if n, err := f.store.PendingCount(); err == nil {
		f.metrics.OutboxPending.Set(float64(n))
	}
	return errors.Join(errs...)
}

// pending reads the oldest unsent rows of kinds. Undecodable rows can never
// succeed; they are marked sent so retention drops them.
func (f *Flusher) pending(kinds []string) ([]pendingHit, error) {
	rows, err := f.store.PendingOutbox(kinds, maxRowsPerFlush)
	if err != nil {
		return nil, fmt.Errorf("read outbox: %w", err)
	}

	var out []pendingHit
	var broken []int64
	for _, row := range rows {
		var e Event
		if err := json.Unmarshal(row.Payload, &e); err != nil {
			f.log.Warn("discard undecodable outbox row", "id", row.ID, "err", err)
			broken = append(broken, row.ID)
			continue
		}
		out = append(out, pendingHit{id: row.ID, event: e})
	}
	if err := f.store.MarkSent(broken, f.now().Unix()); err != nil {
		return nil, fmt.Errorf("mark broken rows: %w", err)
	}
	return out, nil
}

func (f *Flusher) upload(ctx context.Context, dest string, s Sender, pending []pendingHit) (int, error) {
	var sent int
	var firstErr error
	for batch := range slices.Chunk(pending, f.batchSize) {
		ids := make([]int64, len(batch))
		events := make([]Event, len(batch))
		for i, p := range batch {
			ids[i], events[i] = p.id, p.event
		}

		if err := s.Send(ctx, events); err != nil {
			f.metrics.HitsFailed.WithLabelValues(dest).Add(float64(len(batch)))
			if markErr := f.store.MarkFailed(ids); markErr != nil {
				f.log.Warn("mark failed rows", "err", markErr)
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("upload to %s: %w", dest, err)
			}
			continue
		}
		if err := f.store.MarkSent(ids, f.now().Unix()); err != nil {
			return sent, fmt.Errorf("mark sent: %w", err)
		}
		sent += len(batch)
		f.metrics.HitsSent.WithLabelValues(dest).Add(float64(len(batch)))
	}
	if sent > 0 {
		f.log.Info("uploaded", "destination", dest, "rows", sent)
	}
	return sent, firstErr
}

// Schedule runs Flush on the cron spec until ctx is done.
func (f *Flusher) Schedule(ctx context.Context, spec string) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if err := f.Flush(ctx); err != nil {
			f.log.Warn("scheduled flush failed", "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule flush %q: %w", spec, err)
	}

	c.Start()
	f.log.Info("flush scheduled", "schedule", spec)
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// NetworkUp reports whether any non-loopback interface is up with an address.
func NetworkUp(ctx context.Context) bool {
	ifaces, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if slices.Contains(iface.Flags, "loopback") || !slices.Contains(iface.Flags, "up") {
			continue
		}
		if len(iface.Addrs) > 0 {
			return true
		}
	}
	return false
}
