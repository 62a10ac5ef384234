package farming

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "safe_farming"
	subsystem        = "engine"
)

var (
	rewardEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "reward_events_total",
			Help:      "Reward events handled, by result",
		},
		[]string{"result"},
	)

	currentRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "current_rate",
			Help:      "Reward rate at the replica's current view of network usage",
		},
	)

	totalUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "total_usage_bytes",
			Help:      "Network usage as seen by this replica",
		},
	)

	payoutsProposed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "payouts_proposed_total",
			Help:      "Payout proposals raised by this replica",
		},
	)

	certificatesHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "certificates_handled_total",
			Help:      "Payout certificates handed to the engine, by result",
		},
		[]string{"result"},
	)

	snapshotsMerged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "snapshots_merged_total",
			Help:      "Replica snapshots merged, by result",
		},
		[]string{"result"},
	)

	snapshotSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "snapshot_size_bytes",
			Help:      "Size of encoded replica snapshots",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 10),
		},
	)
)
