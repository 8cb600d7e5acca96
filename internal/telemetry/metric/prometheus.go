package metric

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every kvgate metric.
const Namespace = "kvgate"

// Registry holds all application metrics.
type Registry struct {
	registry *prometheus.Registry

	// Command metrics
	CommandsTotal     *prometheus.CounterVec
	CommandDuration   *prometheus.HistogramVec
	Rejections        *prometheus.CounterVec
	SlowCommands      *prometheus.CounterVec
	RateLimited       prometheus.Counter
	ConnectionsActive prometheus.Gauge

	// Side channels
	OutputOverflows prometheus.Counter
	MonitorDropped  prometheus.Counter

	// Storage metrics
	WALAppends      *prometheus.CounterVec
	WALWriteBytes   prometheus.Counter
	SnapshotSeconds prometheus.Histogram
}

// NewRegistry creates a registry with Go runtime and process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		registry: reg,
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "commands_total",
			Help:      "Commands processed, by command and result.",
		}, []string{"command", "result"}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "command_duration_seconds",
			Help:      "Time from admission to reply.",
			Buckets:   []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .05, .1, .5, 1},
		}, []string{"command"}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "admission_rejections_total",
			Help:      "Commands rejected before execution, by reason.",
		}, []string{"reason"}),
		SlowCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "slow_commands_total",
			Help:      "Commands slower than slowlog_slower_than.",
		}, []string{"command"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rate_limited_total",
			Help:      "Commands refused by the per-IP rate limiter.",
		}),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "connections_active",
			Help:      "Open client connections.",
		}),
		OutputOverflows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "output_buffer_overflows_total",
			Help:      "Replies replaced because the output buffer hit its ceiling.",
		}),
		MonitorDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "monitor_dropped_total",
			Help:      "Monitor lines dropped because a subscriber queue was full.",
		}),
		WALAppends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "wal_appends_total",
			Help:      "Write-ahead log appends, by result.",
		}, []string{"result"}),
		WALWriteBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "wal_write_bytes_total",
			Help:      "Bytes of command records written to the write-ahead log.",
		}),
		SnapshotSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "snapshot_write_duration_seconds",
			Help:      "Time spent writing snapshots.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}

	reg.MustRegister(
		r.CommandsTotal,
		r.CommandDuration,
		r.Rejections,
		r.SlowCommands,
		r.RateLimited,
		r.ConnectionsActive,
		r.OutputOverflows,
		r.MonitorDropped,
		r.WALAppends,
		r.WALWriteBytes,
		r.SnapshotSeconds,
	)
	return r
}

// Handler serves this registry in Prometheus text format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Prometheus exposes the underlying registry for components that register
// their own collectors.
func (r *Registry) Prometheus() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// MustRegister registers additional collectors. No-op on a nil registry.
func (r *Registry) MustRegister(cs ...prometheus.Collector) {
	if r == nil {
		return
	}
	r.registry.MustRegister(cs...)
}

// ============================================================
// Recording helpers
// ============================================================

// RecordCommand counts a finished command and observes its latency.
func (r *Registry) RecordCommand(command, result string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.CommandsTotal.WithLabelValues(command, result).Inc()
	r.CommandDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}

func (r *Registry) RecordRejection(reason string) {
	if r == nil {
		return
	}
	r.Rejections.WithLabelValues(reason).Inc()
}

func (r *Registry) RecordSlowCommand(command string) {
	if r == nil {
		return
	}
	r.SlowCommands.WithLabelValues(command).Inc()
}

func (r *Registry) IncRateLimited() {
	if r == nil {
		return
	}
	r.RateLimited.Inc()
}

func (r *Registry) IncConnections() {
	if r == nil {
		return
	}
	r.ConnectionsActive.Inc()
}

func (r *Registry) DecConnections() {
	if r == nil {
		return
	}
	r.ConnectionsActive.Dec()
}

func (r *Registry) IncOutputOverflow() {
	if r == nil {
		return
	}
	r.OutputOverflows.Inc()
}

func (r *Registry) IncMonitorDropped() {
	if r == nil {
		return
	}
	r.MonitorDropped.Inc()
}

// RecordWALAppend counts an append attempt and, on success, its size.
func (r *Registry) RecordWALAppend(bytes int, err error) {
	if r == nil {
		return
	}
	if err != nil {
		r.WALAppends.WithLabelValues("error").Inc()
		return
	}
	r.WALAppends.WithLabelValues("ok").Inc()
	r.WALWriteBytes.Add(float64(bytes))
}

func (r *Registry) ObserveSnapshotWriteTime(d time.Duration) {
	if r == nil {
		return
	}
	r.SnapshotSeconds.Observe(d.Seconds())
}
