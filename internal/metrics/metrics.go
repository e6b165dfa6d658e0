package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shiptrack"

// Metrics: коллекторы одного процесса на собственном registry.
// nil *Metrics допустим: все методы записи становятся no-op.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	ShipmentsCreated    prometheus.Counter
	CheckpointsAppended *prometheus.CounterVec
	NotificationsQueued *prometheus.CounterVec
	NotificationsSent   *prometheus.CounterVec
	NotificationsFailed *prometheus.CounterVec
	SimulationSteps     prometheus.Counter
	SimulationsActive   prometheus.Gauge
	CircuitBreakerState *prometheus.GaugeVec
}

func New(service string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	constLabels := prometheus.Labels{"service": service}
	m := &Metrics{registry: registry}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "http_requests_total",
		Help:        "Total number of HTTP requests",
		ConstLabels: constLabels,
	}, []string{"method", "route", "status"})

	m.HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   namespace,
		Name:        "http_request_duration_seconds",
		Help:        "HTTP request duration in seconds",
		ConstLabels: constLabels,
		Buckets:     []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "route"})

	m.ShipmentsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "shipments_created_total",
		Help:        "Shipments created",
		ConstLabels: constLabels,
	})

	m.CheckpointsAppended = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "checkpoints_appended_total",
		Help:        "Checkpoints appended, by source (api, simulator, ingest)",
		ConstLabels: constLabels,
	}, []string{"source"})

	m.NotificationsQueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "notifications_queued_total",
		Help:        "Notifications handed to the notifier, by channel",
		ConstLabels: constLabels,
	}, []string{"channel"})

	m.NotificationsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "notifications_sent_total",
		Help:        "Notifications delivered, by channel",
		ConstLabels: constLabels,
	}, []string{"channel"})

	m.NotificationsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "notifications_failed_total",
		Help:        "Notifications dropped after retries, by channel and reason",
		ConstLabels: constLabels,
	}, []string{"channel", "reason"})

	m.SimulationSteps = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "simulation_steps_total",
		Help:        "Simulated checkpoints produced",
		ConstLabels: constLabels,
	})

	m.SimulationsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "simulations_active",
		Help:        "Simulation loops currently running in this process",
		ConstLabels: constLabels,
	})

	m.CircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "circuit_breaker_state",
		Help:        "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		ConstLabels: constLabels,
	}, []string{"name"})

	registry.MustRegister(
		m.HTTPRequestsTotal, m.HTTPRequestDuration,
		m.ShipmentsCreated, m.CheckpointsAppended,
		m.NotificationsQueued, m.NotificationsSent, m.NotificationsFailed,
		m.SimulationSteps, m.SimulationsActive, m.CircuitBreakerState,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) ShipmentCreated() {
	if m == nil {
		return
	}
	m.ShipmentsCreated.Inc()
}

func (m *Metrics) CheckpointAppended(source string) {
	if m == nil {
		return
	}
	m.CheckpointsAppended.WithLabelValues(source).Inc()
}

func (m *Metrics) NotificationQueued(channel string) {
	if m == nil {
		return
	}
	m.NotificationsQueued.WithLabelValues(channel).Inc()
}

func (m *Metrics) NotificationSent(channel string) {
	if m == nil {
		return
	}
	m.NotificationsSent.WithLabelValues(channel).Inc()
}

func (m *Metrics) NotificationFailed(channel, reason string) {
	if m == nil {
		return
	}
	m.NotificationsFailed.WithLabelValues(channel, reason).Inc()
}

func (m *Metrics) SimulationStep() {
	if m == nil {
		return
	}
	m.SimulationSteps.Inc()
}

func (m *Metrics) SimulationStarted() {
	if m == nil {
		return
	}
	m.SimulationsActive.Inc()
}

func (m *Metrics) SimulationStopped() {
	if m == nil {
		return
	}
	m.SimulationsActive.Dec()
}

func (m *Metrics) BreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}
