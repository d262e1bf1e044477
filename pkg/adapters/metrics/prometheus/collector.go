// Package prometheus implements the metrics collector on Prometheus.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements MetricsCollector using Prometheus
type Collector struct {
	workersMaterialized *prometheus.CounterVec
	materializeTime     prometheus.Histogram
	workerRestarts      *prometheus.CounterVec
	workersDead         *prometheus.CounterVec
	escalations         prometheus.Counter
	dispatches          *prometheus.CounterVec
	poolSize            *prometheus.GaugeVec
	queueDepth          *prometheus.GaugeVec
}

// NewCollector creates a new Prometheus metrics collector
func NewCollector() *Collector {
	return &Collector{
		workersMaterialized: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "troupe_workers_materialized_total",
				Help: "Total number of worker materialization attempts",
			},
			[]string{"status"},
		),
		materializeTime: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "troupe_worker_materialize_duration_seconds",
				Help:    "Worker materialization duration in seconds",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
		),
		workerRestarts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "troupe_worker_restarts_total",
				Help: "Total number of supervised worker restarts",
			},
			[]string{"performer"},
		),
		workersDead: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "troupe_workers_dead_total",
				Help: "Total number of workers declared dead",
			},
			[]string{"performer"},
		),
		escalations: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "troupe_escalations_total",
				Help: "Total number of ensemble-level escalations",
			},
		),
		dispatches: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "troupe_pool_dispatches_total",
				Help: "Total number of messages dispatched to pool members",
			},
			[]string{"performer"},
		),
		poolSize: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "troupe_pool_size",
				Help: "Current number of members in each worker pool",
			},
			[]string{"performer"},
		),
		queueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "troupe_queue_depth",
				Help: "Current queued messages per performer",
			},
			[]string{"performer"},
		),
	}
}

// RecordMaterialized records one worker materialization attempt
func (c *Collector) RecordMaterialized(status string, duration time.Duration) {
	c.workersMaterialized.WithLabelValues(status).Inc()
	c.materializeTime.Observe(duration.Seconds())
}

// RecordRestart records a supervised restart of a worker
func (c *Collector) RecordRestart(performerID string) {
	c.workerRestarts.WithLabelValues(performerID).Inc()
}

// RecordDead records a worker exceeding its restart budget
func (c *Collector) RecordDead(performerID string) {
	c.workersDead.WithLabelValues(performerID).Inc()
}

// RecordEscalation records an ensemble-level escalation
func (c *Collector) RecordEscalation() {
	c.escalations.Inc()
}

// RecordDispatch records a message dispatched through a pool
func (c *Collector) RecordDispatch(performerID string) {
	c.dispatches.WithLabelValues(performerID).Inc()
}

// SetPoolSize sets the current member count of a pool
func (c *Collector) SetPoolSize(performerID string, size int) {
	c.poolSize.WithLabelValues(performerID).Set(float64(size))
}

// SetQueueDepth sets the current queue depth for a performer
func (c *Collector) SetQueueDepth(performerID string, depth int) {
	c.queueDepth.WithLabelValues(performerID).Set(float64(depth))
}
