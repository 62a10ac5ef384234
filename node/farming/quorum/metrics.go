package quorum

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "safe_farming"
	subsystem        = "quorum"
)

var (
	roundsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "rounds_started_total",
			Help:      "Total number of signing rounds opened by this coordinator",
		},
	)

	roundOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "round_outcomes_total",
			Help:      "Signing rounds reaching a terminal state",
		},
		[]string{"state"},
	)

	openRounds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "open_rounds",
			Help:      "Signing rounds still collecting shares",
		},
	)

	sharesAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "shares_accepted_total",
			Help:      "Valid signature shares counted toward a round",
		},
	)

	sharesRefused = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "shares_refused_total",
			Help:      "Signature shares not counted, by reason",
		},
		[]string{"reason"},
	)

	signerDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "signer_decisions_total",
			Help:      "Proposals handled by local signers, by decision",
		},
		[]string{"decision"},
	)

	aggregationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "aggregation_duration_seconds",
			Help:      "Time taken to verify and combine shares into a certificate",
			Buckets:   prometheus.DefBuckets,
		},
	)
)
