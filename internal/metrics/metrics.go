// Package metrics exports Prometheus counters fed by bus events.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	eventbus "github.com/hanpama/gqlws/internal/eventbus"
	events "github.com/hanpama/gqlws/internal/events"
)

const namespace = "gqlws"

// Metrics holds the collectors and the registry they are registered on.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	graphqlErrors prometheus.Counter
	connections   prometheus.Gauge
	operations    prometheus.Gauge
	outcomes      *prometheus.CounterVec
	opDuration    prometheus.Histogram
	frames        *prometheus.CounterVec
}

// New creates collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		graphqlErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graphql",
			Name:      "errors_total",
			Help:      "GraphQL errors returned over HTTP.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "connections",
			Help:      "Open graphql-ws connections.",
		}),
		operations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "operations",
			Help:      "Running graphql-ws operations.",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "operations_total",
			Help:      "Finished graphql-ws operations by outcome.",
		}, []string{"outcome"}),
		opDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "operation_duration_seconds",
			Help:      "graphql-ws operation lifetime in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 10),
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "frames_total",
			Help:      "graphql-ws frames by direction and type.",
		}, []string{"direction", "type"}),
	}
	m.registry.MustRegister(
		m.httpRequests, m.httpDuration, m.graphqlErrors,
		m.connections, m.operations, m.outcomes, m.opDuration, m.frames,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Register subscribes the collectors to b.
func (m *Metrics) Register(b *eventbus.Bus) (unregister func()) {
	offs := []func(){
		eventbus.On(b, func(_ context.Context, e events.HTTPFinish) {
			method := ""
			if e.Request != nil {
				method = e.Request.Method
			}
			m.httpRequests.WithLabelValues(e.Route, method, strconv.Itoa(e.Status)).Inc()
			m.httpDuration.WithLabelValues(e.Route).Observe(e.Duration.Seconds())
		}),
		eventbus.On(b, func(_ context.Context, e events.GraphQLFinish) {
			m.graphqlErrors.Add(float64(e.ErrorCount))
		}),
		eventbus.On(b, func(context.Context, events.WSConnect) { m.connections.Inc() }),
		eventbus.On(b, func(context.Context, events.WSDisconnect) { m.connections.Dec() }),
		eventbus.On(b, func(context.Context, events.OperationStart) { m.operations.Inc() }),
		eventbus.On(b, func(_ context.Context, e events.OperationFinish) {
			m.operations.Dec()
			m.outcomes.WithLabelValues(e.Outcome).Inc()
			m.opDuration.Observe(e.Duration.Seconds())
		}),
		eventbus.On(b, func(_ context.Context, e events.Frame) {
			m.frames.WithLabelValues(e.Direction, e.Type).Inc()
		}),
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}
