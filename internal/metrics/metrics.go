// Package metrics holds the Prometheus collectors shared by the daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Power stats
	Observations      prometheus.Counter
	DischargeEvents   *prometheus.CounterVec
	LastDischargeRate *prometheus.GaugeVec

	// Analytics pipeline
	ReportsQueued     *prometheus.CounterVec
	ReportsDropped    prometheus.Counter
	ReportsSampledOut prometheus.Counter
	HitsSent          *prometheus.CounterVec
	HitsFailed        *prometheus.CounterVec
	OutboxPending     prometheus.Gauge

	// Lifecycle
	LifecycleEvents *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		Observations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "power_analytics_observations_total",
			Help: "Valid battery samples fed to the discharge estimator",
		}),
		DischargeEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "power_analytics_discharge_events_total",
				Help: "Discharge rates emitted",
			},
			[]string{"action"},
		),
		LastDischargeRate: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "power_analytics_last_discharge_rate",
				Help: "Most recent discharge rate in percent per reference window",
			},
			[]string{"action"},
		),
		ReportsQueued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "power_analytics_reports_queued_total",
				Help: "Analytics hits accepted into the report queue",
			},
			[]string{"type"},
		),
		ReportsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "power_analytics_reports_dropped_total",
			Help: "Analytics hits dropped because the queue was full or uploads kept failing",
		}),
		ReportsSampledOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "power_analytics_reports_sampled_out_total",
			Help: "Analytics hits discarded by sampling",
		}),
		HitsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "power_analytics_hits_sent_total",
				Help: "Outbox rows uploaded",
			},
			[]string{"destination"},
		),
		HitsFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "power_analytics_hits_failed_total",
				Help: "Outbox rows whose upload failed",
			},
			[]string{"destination"},
		),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "power_analytics_outbox_pending",
			Help: "Outbox rows waiting for upload",
		}),
		LifecycleEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "power_analytics_lifecycle_events_total",
				Help: "Lifecycle events handled",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		m.Observations,
		m.DischargeEvents,
		m.LastDischargeRate,
		m.ReportsQueued,
		m.ReportsDropped,
		m.ReportsSampledOut,
		m.HitsSent,
		m.HitsFailed,
		m.OutboxPending,
		m.LifecycleEvents,
	)

	return m
}
