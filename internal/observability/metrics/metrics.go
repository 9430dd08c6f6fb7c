package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
)

// Metrics counts gating outcomes and ledger activity.
type Metrics struct {
	GrantsIssued   prometheus.Counter
	GatingAttempts *prometheus.CounterVec
	DebitRetries   prometheus.Counter
	CreditsRefunds prometheus.Counter
	SweptGrants    prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		GrantsIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "applygate_grants_issued_total",
			Help: "Entitlement grants created from verified payments.",
		}),
		GatingAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "applygate_gating_attempts_total",
			Help: "Gated action attempts by terminal outcome.",
		}, []string{"kind", "outcome"}),
		DebitRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "applygate_debit_retries_total",
			Help: "Debit retries caused by lost compare-and-set races.",
		}),
		CreditsRefunds: promauto.NewCounter(prometheus.CounterOpts{
			Name: "applygate_credit_refunds_total",
			Help: "Credits returned after a failed domain effect.",
		}),
		SweptGrants: promauto.NewCounter(prometheus.CounterOpts{
			Name: "applygate_swept_grants_total",
			Help: "Active grants flipped to expired by the sweep.",
		}),
	}
}

var Module = fx.Module("observability.metrics",
	fx.Provide(New),
)
