package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "safe_farming"
	subsystem        = "ledger"
)

var (
	bytesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "bytes_recorded_total",
			Help:      "Total bytes recorded into this replica's usage slot",
		},
		[]string{"replica"},
	)

	rewardsCredited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "rewards_credited_total",
			Help:      "Total reward units credited by this replica",
		},
		[]string{"replica"},
	)

	duplicateEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "duplicate_events_total",
			Help:      "Reward events ignored because they were already applied",
		},
		[]string{"replica"},
	)

	certificatesApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "certificates_applied_total",
			Help:      "Payout certificates debited by this replica",
		},
		[]string{"replica"},
	)

	amountDebited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "amount_debited_total",
			Help:      "Total reward units debited by this replica",
		},
		[]string{"replica"},
	)

	merges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "merges_total",
			Help:      "Number of remote states merged, by kind",
		},
		[]string{"kind"},
	)

	accountsTracked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "accounts_tracked",
			Help:      "Number of accounts holding a reward counter",
		},
	)

	appliedTracked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "applied_proposals_tracked",
			Help:      "Number of applied proposal ids retained for replay protection",
		},
	)
)
