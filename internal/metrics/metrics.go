package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tixledger"

// Metrics groups the reservation, reconciliation and issuance collectors
type Metrics struct {
	Reservations     *prometheus.CounterVec
	StockReleased    prometheus.Counter
	WebhookOutcomes  *prometheus.CounterVec
	PaymentMismatch  prometheus.Counter
	ProviderFailures *prometheus.CounterVec
	TicketsIssued    prometheus.Counter
	IssueFailures    prometheus.Counter
	ExpiredPurchases prometheus.Counter
	WebhookLatency   *prometheus.HistogramVec
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Reservations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_total",
			Help:      "Purchase attempts by result.",
		}, []string{"result"}),
		StockReleased: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_released_units_total",
			Help:      "Reserved units returned to available.",
		}),
		WebhookOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_outcomes_total",
			Help:      "Provider callbacks by event kind and reconciliation outcome.",
		}, []string{"event", "outcome"}),
		PaymentMismatch: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_mismatch_total",
			Help:      "Callbacks escalated for manual reconciliation.",
		}),
		ProviderFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_failures_total",
			Help:      "Failed server-side calls to the payment provider.",
		}, []string{"call"}),
		TicketsIssued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tickets_issued_total",
			Help:      "NFT tickets created.",
		}),
		IssueFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticket_issue_failures_total",
			Help:      "Issuance attempts handed to asynchronous retry.",
		}),
		ExpiredPurchases: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expired_purchases_total",
			Help:      "Pending purchases cancelled by the TTL sweep.",
		}),
		WebhookLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_duration_seconds",
			Help:      "Time spent reconciling one provider callback.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event"}),
	}
}

// NewNop returns collectors bound to a private registry, for tests and tools.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
