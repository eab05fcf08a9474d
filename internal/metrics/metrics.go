// Package metrics holds the authority's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Execution outcome label values.
	OutcomeOK          = "ok"
	OutcomeDenied      = "denied"
	OutcomeExpired     = "expired"
	OutcomeFailed      = "failed"
	OutcomeUnavailable = "unavailable"
)

// Set bundles every collector the authority emits. Pass a nil Registerer to
// get collectors that are not registered anywhere (tests, embedded use).
type Set struct {
	SessionsIssued       prometheus.Counter
	SessionsFailed       prometheus.Counter
	Executions           *prometheus.CounterVec
	CapacityGrantsMinted prometheus.Counter
}

func New(reg prometheus.Registerer) *Set {
	factory := promauto.With(reg)
	return &Set{
		SessionsIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "key_authority_sessions_issued_total",
			Help: "Session credentials issued.",
		}),
		SessionsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "key_authority_sessions_failed_total",
			Help: "Session requests that terminated in the failed state.",
		}),
		Executions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "key_authority_executions_total",
			Help: "Program executions forwarded through the gateway, by outcome.",
		}, []string{"outcome"}),
		CapacityGrantsMinted: factory.NewCounter(prometheus.CounterOpts{
			Name: "key_authority_capacity_grants_minted_total",
			Help: "Capacity grants minted on the signing network.",
		}),
	}
}
