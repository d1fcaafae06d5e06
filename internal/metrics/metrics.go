package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	confirmations    *prometheus.CounterVec
	validations      *prometheus.CounterVec
	providerRequests *prometheus.CounterVec
	notifications    *prometheus.CounterVec
	sweptOrders      *prometheus.CounterVec
	commitDuration   *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		confirmations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tixgate_confirmations_total",
				Help: "Confirmation requests handled by the reconciliation engine",
			},
			[]string{"source", "outcome"},
		),
		validations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tixgate_validations_total",
				Help: "Ticket validation attempts at the gate",
			},
			[]string{"outcome"},
		),
		providerRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tixgate_provider_requests_total",
				Help: "Payment provider status queries",
			},
			[]string{"provider", "result"},
		),
		notifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tixgate_notifications_total",
				Help: "Notification dispatches after first-time commits",
			},
			[]string{"channel", "result"},
		),
		sweptOrders: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tixgate_sweep_orders_total",
				Help: "Pending orders examined by the periodic sweep",
			},
			[]string{"outcome"},
		),
		commitDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tixgate_ledger_commit_duration_seconds",
				Help:    "Duration of ledger transactions",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"kind"},
		),
	}
}

func (m *Metrics) Confirmation(source, outcome string) {
	if m == nil {
		return
	}
	m.confirmations.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) Validation(outcome string) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ProviderRequest(provider, result string) {
	if m == nil {
		return
	}
	m.providerRequests.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) Notification(channel, result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(channel, result).Inc()
}

func (m *Metrics) SweptOrder(outcome string) {
	if m == nil {
		return
	}
	m.sweptOrders.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveCommit(kind string, started time.Time) {
	if m == nil {
		return
	}
	m.commitDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}
