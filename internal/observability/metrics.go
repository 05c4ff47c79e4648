package observability

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"inventory/internal/domain"
)

var (
	inventoryOnce sync.Once
	inventoryReg  *InventoryMetrics

	httpOnce sync.Once
	httpReg  *HTTPMetrics
)

// InventoryMetrics tracks ledger and hold engine activity.
type InventoryMetrics struct {
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	errors      *prometheus.CounterVec
	transitions *prometheus.CounterVec
	units       *prometheus.CounterVec
	sweeps      *prometheus.CounterVec
}

// Inventory returns the singleton metrics registry for the engine.
func Inventory() *InventoryMetrics {
	inventoryOnce.Do(func() {
		inventoryReg = &InventoryMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "inventory",
				Subsystem: "engine",
				Name:      "requests_total",
				Help:      "Count of engine operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "inventory",
				Subsystem: "engine",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for engine operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "inventory",
				Subsystem: "engine",
				Name:      "errors_total",
				Help:      "Count of engine failures segmented by operation and error class.",
			}, []string{"operation", "reason"}),
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "inventory",
				Subsystem: "holds",
				Name:      "transitions_total",
				Help:      "Hold state transitions segmented by resulting status.",
			}, []string{"status"}),
			units: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "inventory",
				Subsystem: "holds",
				Name:      "unit_nights_total",
				Help:      "Unit-days reserved or given back, segmented by direction.",
			}, []string{"direction"}),
			sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "inventory",
				Subsystem: "sweeper",
				Name:      "runs_total",
				Help:      "Expiry sweep runs segmented by outcome.",
			}, []string{"outcome"}),
		}
		prometheus.MustRegister(
			inventoryReg.requests,
			inventoryReg.latency,
			inventoryReg.errors,
			inventoryReg.transitions,
			inventoryReg.units,
			inventoryReg.sweeps,
		)
	})
	return inventoryReg
}

// Observe records the outcome of one engine operation.
func (m *InventoryMetrics) Observe(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		m.errors.WithLabelValues(op, domain.Code(err)).Inc()
	}
	m.requests.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// Transition counts a hold reaching status; unitDays is quantity times nights.
func (m *InventoryMetrics) Transition(status string, unitDays int) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
	switch status {
	case "HELD":
		m.units.WithLabelValues("reserved").Add(float64(unitDays))
	case "RELEASED", "EXPIRED":
		m.units.WithLabelValues("restored").Add(float64(unitDays))
	}
}

// Sweep records one expiry sweep run.
func (m *InventoryMetrics) Sweep(err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.sweeps.WithLabelValues(outcome).Inc()
}

// HTTPMetrics tracks API requests by route.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func HTTP() *HTTPMetrics {
	httpOnce.Do(func() {
		httpReg = &HTTPMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "inventory",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests segmented by method, route and status.",
			}, []string{"method", "route", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "inventory",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency by method and route.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method", "route"}),
		}
		prometheus.MustRegister(httpReg.requests, httpReg.latency)
	})
	return httpReg
}

func (m *HTTPMetrics) Observe(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(method, route).Observe(duration.Seconds())
}
