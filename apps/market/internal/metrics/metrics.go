package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"nftmarket/apps/market/internal/model"
)

const namespace = "market"

// Metrics holds the service's prometheus collectors
type Metrics struct {
	OrdersCreated    *prometheus.CounterVec
	Verifications    *prometheus.CounterVec
	ChainCallSeconds *prometheus.HistogramVec
	EventsPublished  prometheus.Counter
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OrdersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Orders persisted, by sale side",
		}, []string{"side"}),
		Verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_verifications_total",
			Help:      "Order verification attempts, by outcome",
		}, []string{"outcome"}),
		ChainCallSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chain_call_duration_seconds",
			Help:      "Latency of read-only contract calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "result"}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_published_total",
			Help:      "Outbox events delivered to Kafka",
		}),
	}

	reg.MustRegister(m.OrdersCreated, m.Verifications, m.ChainCallSeconds, m.EventsPublished)
	return m
}

// ObserveChainCall records the duration of a single contract call attempt
func (m *Metrics) ObserveChainCall(method string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ChainCallSeconds.WithLabelValues(method, result).Observe(d.Seconds())
}

// ObserveVerification counts a verification attempt under its error class
func (m *Metrics) ObserveVerification(err error) {
	m.Verifications.WithLabelValues(Outcome(err)).Inc()
}

// Outcome maps an error to a bounded label value
func Outcome(err error) string {
	switch {
	case err == nil:
		return "verified"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrExpired):
		return "expired"
	case errors.Is(err, model.ErrUnsupportedSaleKind):
		return "unsupported_sale_kind"
	case errors.Is(err, model.ErrPreconditionFailed):
		return "precondition_failed"
	case errors.Is(err, model.ErrSignatureInvalid):
		return "signature_invalid"
	case errors.Is(err, model.ErrExternalUnavailable):
		return "external_unavailable"
	case errors.Is(err, model.ErrCorruptOrder):
		return "corrupt_order"
	default:
		return "error"
	}
}
