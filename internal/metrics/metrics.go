// Package metrics exposes Prometheus metrics for RCON sessions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result labels.
const (
	ResultOK           = "ok"
	ResultUnauthorised = "unauthorised"
	ResultAuthFailed   = "auth_failed"
	ResultTransport    = "transport"
	ResultProtocol     = "protocol"
	ResultInvalid      = "invalid"
	ResultClosed       = "closed"
)

// Config configures the metrics set.
type Config struct {
	// Namespace prefixes every metric name (default: "rconsole").
	Namespace string

	// ConstLabels are added to every metric.
	ConstLabels prometheus.Labels

	// Buckets are the command duration histogram buckets.
	Buckets []float64

	// Registry receives the metrics and serves them from Handler.
	// Default: a fresh registry with Go and process collectors.
	Registry *prometheus.Registry
}

// Option configures the metrics set.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

// Metrics holds the collectors updated by a session.
type Metrics struct {
	registry *prometheus.Registry

	commandsTotal   *prometheus.CounterVec
	commandDuration prometheus.Histogram
	connectsTotal   *prometheus.CounterVec
	responseBytes   prometheus.Counter
	connected       prometheus.Gauge
}

// New creates and registers the metrics.
func New(opts ...Option) *Metrics {
	cfg := Config{
		Namespace: "rconsole",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
		cfg.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	factory := promauto.With(cfg.Registry)

	return &Metrics{
		registry: cfg.Registry,

		commandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "commands_total",
			Help:        "Total number of RCON commands by result",
			ConstLabels: cfg.ConstLabels,
		}, []string{"result"}),

		commandDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Name:        "command_duration_seconds",
			Help:        "Round trip time of RCON commands in seconds",
			ConstLabels: cfg.ConstLabels,
			Buckets:     cfg.Buckets,
		}),

		connectsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "connects_total",
			Help:        "Total number of connection attempts by result",
			ConstLabels: cfg.ConstLabels,
		}, []string{"result"}),

		responseBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "response_bytes_total",
			Help:        "Total bytes of command output received",
			ConstLabels: cfg.ConstLabels,
		}),

		connected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Name:        "session_connected",
			Help:        "1 while the session holds an authenticated connection",
			ConstLabels: cfg.ConstLabels,
		}),
	}
}

// ObserveCommand records one command round trip.
func (m *Metrics) ObserveCommand(result string, d time.Duration, responseBytes int) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(result).Inc()
	m.commandDuration.Observe(d.Seconds())
	if responseBytes > 0 {
		m.responseBytes.Add(float64(responseBytes))
	}
}

// ObserveConnect records one connection attempt.
func (m *Metrics) ObserveConnect(result string) {
	if m == nil {
		return
	}
	m.connectsTotal.WithLabelValues(result).Inc()
	if result == ResultOK {
		m.connected.Set(1)
	}
}

// SetDisconnected clears the connected gauge.
func (m *Metrics) SetDisconnected() {
	if m == nil {
		return
	}
	m.connected.Set(0)
}

// Registry returns the registry the metrics live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
