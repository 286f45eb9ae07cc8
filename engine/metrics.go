package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "phiconsensus"
	metricsSubsystem = "engine"
)

// Metrics holds the engine's Prometheus instruments. Created with a nil
// registerer the instruments still work, they are just not exported.
type Metrics struct {
	BlocksAccepted    prometheus.Counter
	BlocksRejected    *prometheus.CounterVec
	VotesRecorded     prometheus.Counter
	HeightsFinalized  prometheus.Counter
	HeightsTimedOut   prometheus.Counter
	HeightsCollecting prometheus.Gauge
	Equivocations     prometheus.Counter
}

// NewMetrics creates the engine metrics, registering them on reg when reg is
// non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BlocksAccepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "blocks_accepted_total",
			Help:      "Blocks that passed proof validation.",
		}),
		BlocksRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "blocks_rejected_total",
			Help:      "Blocks rejected during proof validation, by reason.",
		}, []string{"reason"}),
		VotesRecorded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "quorum_votes_recorded_total",
			Help:      "Verified quorum-slice votes recorded.",
		}),
		HeightsFinalized: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "heights_finalized_total",
			Help:      "Heights that reached quorum-slice unanimity.",
		}),
		HeightsTimedOut: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "heights_timed_out_total",
			Help:      "Heights that timed out before unanimity.",
		}),
		HeightsCollecting: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "heights_collecting",
			Help:      "Heights currently collecting quorum votes.",
		}),
		Equivocations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "equivocations_detected_total",
			Help:      "Conflicting quorum votes detected.",
		}),
	}
}
