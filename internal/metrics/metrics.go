package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the handshake and the matching coordinator
type Metrics struct {
	QueueSize         prometheus.Gauge
	Connections       prometheus.Gauge
	MatchesTotal      prometheus.Counter
	DeliveryFailures  prometheus.Counter
	TickDuration      prometheus.Histogram
	NoncesIssued      prometheus.Counter
	NonceRedemptions  *prometheus.CounterVec
	AttestationsTotal *prometheus.CounterVec
	UpgradeRejections *prometheus.CounterVec
}

// New registers all metrics on reg. Pass prometheus.DefaultRegisterer in main and a
// fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		QueueSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "pairgate_queue_size",
			Help: "Number of participants waiting in the pool",
		}),
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Name: "pairgate_connections",
			Help: "Number of registered WebSocket sessions",
		}),
		MatchesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "pairgate_matches_total",
			Help: "Total number of pairings produced",
		}),
		DeliveryFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "pairgate_delivery_failures_total",
			Help: "Messages that could not be handed to a client connection",
		}),
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pairgate_tick_duration_seconds",
			Help:    "Duration of reconciliation passes",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		NoncesIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "pairgate_nonces_issued_total",
			Help: "Total number of nonces issued",
		}),
		NonceRedemptions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pairgate_nonce_redemptions_total",
			Help: "Nonce redemption attempts by outcome",
		}, []string{"outcome"}),
		AttestationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pairgate_attestations_total",
			Help: "Attestation submissions by outcome",
		}, []string{"outcome"}),
		UpgradeRejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pairgate_upgrade_rejections_total",
			Help: "WebSocket upgrades rejected before the session started",
		}, []string{"reason"}),
	}
}

// NewNop returns metrics registered on a private registry
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
