package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors. A nil *Metrics is valid and records
// nothing, so services can run without a registry in tests.
type Metrics struct {
	reservations      *prometheus.CounterVec
	claimAttempts     prometheus.Histogram
	versionConflicts  prometheus.Counter
	releases          *prometheus.CounterVec
	orders            *prometheus.CounterVec
	webhookEvents     *prometheus.CounterVec
	sweeps            *prometheus.CounterVec
	outboxDispatched  *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	httpRequestLength *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reservations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservations_total",
				Help: "Reservation attempts by result",
			},
			[]string{"result"},
		),
		claimAttempts: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "reservation_claim_attempts",
				Help:    "Transaction attempts needed per reservation",
				Buckets: []float64{1, 2, 3, 4, 5, 8},
			},
		),
		versionConflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "inventory_version_conflicts_total",
				Help: "Optimistic counter writes rejected on a stale version",
			},
		),
		releases: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservations_released_total",
				Help: "Reservations released by reason",
			},
			[]string{"reason"},
		),
		orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_total",
				Help: "Order transitions by status",
			},
			[]string{"status"},
		),
		webhookEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_webhook_events_total",
				Help: "Payment webhook events by outcome",
			},
			[]string{"outcome"},
		),
		sweeps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "expiry_sweeps_total",
				Help: "Expiry sweeper item results",
			},
			[]string{"result"},
		),
		outboxDispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outbox_events_total",
				Help: "Outbox events handled by the relay",
			},
			[]string{"result"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "status"},
		),
		httpRequestLength: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}
	reg.MustRegister(
		m.reservations,
		m.claimAttempts,
		m.versionConflicts,
		m.releases,
		m.orders,
		m.webhookEvents,
		m.sweeps,
		m.outboxDispatched,
		m.httpRequests,
		m.httpRequestLength,
	)
	return m
}

// Handler exposes the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

func (m *Metrics) ReservationResult(result string) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(result).Inc()
}

func (m *Metrics) ClaimAttempts(n int) {
	if m == nil {
		return
	}
	m.claimAttempts.Observe(float64(n))
}

func (m *Metrics) VersionConflict() {
	if m == nil {
		return
	}
	m.versionConflicts.Inc()
}

func (m *Metrics) Released(reason string) {
	if m == nil {
		return
	}
	m.releases.WithLabelValues(reason).Inc()
}

func (m *Metrics) Order(status string) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(status).Inc()
}

func (m *Metrics) WebhookEvent(outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Sweep(result string) {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues(result).Inc()
}

func (m *Metrics) OutboxEvent(result string) {
	if m == nil {
		return
	}
	m.outboxDispatched.WithLabelValues(result).Inc()
}

func (m *Metrics) HTTPRequest(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.httpRequestLength.WithLabelValues(method).Observe(d.Seconds())
}
