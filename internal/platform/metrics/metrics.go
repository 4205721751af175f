package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the authorization server.
type Metrics struct {
	NegotiationsStarted  prometheus.Counter
	NegotiationsApproved prometheus.Counter
	ContinuationsDenied  prometheus.Counter
	Verifications        *prometheus.CounterVec
	VerifyDuration       prometheus.Histogram
	CredentialsIssued    prometheus.Counter
	PresentationsIssued  prometheus.Counter
	TokensResolved       prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		NegotiationsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mandate_negotiations_started_total",
			Help: "Total number of grant negotiations started",
		}),
		NegotiationsApproved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mandate_negotiations_approved_total",
			Help: "Total number of grant negotiations that reached an access token",
		}),
		ContinuationsDenied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mandate_continuations_denied_total",
			Help: "Total number of rejected continuation attempts",
		}),
		Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mandate_verifications_total",
			Help: "Total number of VP verification attempts by outcome",
		}, []string{"outcome"}),
		VerifyDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "mandate_verify_duration_seconds",
			Help:    "Duration of full VP+VC verification runs",
			Buckets: prometheus.DefBuckets,
		}),
		CredentialsIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mandate_credentials_issued_total",
			Help: "Total number of verifiable credentials issued",
		}),
		PresentationsIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mandate_presentations_issued_total",
			Help: "Total number of verifiable presentations issued",
		}),
		TokensResolved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mandate_tokens_resolved_total",
			Help: "Total number of bearer tokens resolved against the trust registry",
		}),
	}
}

// RecordVerification counts one verification attempt with its outcome label.
func (m *Metrics) RecordVerification(outcome string, seconds float64) {
	m.Verifications.WithLabelValues(outcome).Inc()
	m.VerifyDuration.Observe(seconds)
}
