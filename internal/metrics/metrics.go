// Package metrics exposes Prometheus instrumentation for the trash daemon.
//
// Metrics:
//   - trashcan_moves_total: move attempts by result
//   - trashcan_connections_total / trashcan_connections_active: client sessions
//   - trashcan_expired_total / trashcan_expire_failures_total: sweeper removals
//   - trashcan_sweeps_total and trashcan_sweep_duration_seconds: sweep passes
//   - trashcan_store_entries, trashcan_store_orphans, trashcan_store_bytes: store gauges
//
// All methods are safe on a nil *Collector so components can run uninstrumented.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "trashcan"

// Move results used as the result label of trashcan_moves_total.
const (
	MoveResultMoved        = "moved"
	MoveResultInvalid      = "invalid"
	MoveResultFailed       = "failed"
	MoveResultCrossDevice  = "cross_device"
	MoveResultRecordFailed = "record_failed"
)

// Collector owns the daemon's metric instances and registry.
type Collector struct {
	registry *prometheus.Registry

	moves          *prometheus.CounterVec
	connections    prometheus.Counter
	activeConns    prometheus.Gauge
	expired        prometheus.Counter
	expireFailures prometheus.Counter
	sweeps         *prometheus.CounterVec
	sweepDuration  prometheus.Histogram
	entries        prometheus.Gauge
	orphans        prometheus.Gauge
	storeBytes     prometheus.Gauge
}

// New creates and registers the daemon metrics. A nil registry gets a fresh
// one with Go runtime and process collectors attached.
func New(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	c := &Collector{
		registry: registry,
		moves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moves_total",
			Help:      "Paths received from clients, by move result",
		}, []string{"result"}),
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Client connections accepted",
		}),
		activeConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Client connections currently being served",
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expired_total",
			Help:      "Entries removed by the expiry sweeper",
		}),
		expireFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expire_failures_total",
			Help:      "Expired entries the sweeper failed to remove",
		}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Expiry sweeps run, by outcome",
		}, []string{"outcome"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of expiry sweeps in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_entries",
			Help:      "Committed metadata records in the store",
		}),
		orphans: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_orphans",
			Help:      "Files in the store without a metadata record",
		}),
		storeBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_bytes",
			Help:      "Bytes held in the store files area",
		}),
	}

	registry.MustRegister(
		c.moves,
		c.connections,
		c.activeConns,
		c.expired,
		c.expireFailures,
		c.sweeps,
		c.sweepDuration,
		c.entries,
		c.orphans,
		c.storeBytes,
	)
	return c
}

// Registry returns the registry the collector writes to.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler returns the Prometheus exposition handler for the registry.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// ObserveMove counts one path handled by the listener.
func (c *Collector) ObserveMove(result string) {
	if c == nil {
		return
	}
	c.moves.WithLabelValues(result).Inc()
}

// ConnectionOpened tracks a newly accepted client connection.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connections.Inc()
	c.activeConns.Inc()
}

// ConnectionClosed marks a client connection as finished.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.activeConns.Dec()
}

// ObserveSweep records the outcome of one expiry pass.
func (c *Collector) ObserveSweep(expired, failed int, duration time.Duration, err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.sweeps.WithLabelValues(outcome).Inc()
	c.sweepDuration.Observe(duration.Seconds())
	c.expired.Add(float64(expired))
	c.expireFailures.Add(float64(failed))
}

// SetStoreStats updates the store gauges.
func (c *Collector) SetStoreStats(entries, orphans int, bytes int64) {
	if c == nil {
		return
	}
	c.entries.Set(float64(entries))
	c.orphans.Set(float64(orphans))
	c.storeBytes.Set(float64(bytes))
}
