package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	offersPublished  *prometheus.CounterVec
	offerOutcomes    *prometheus.CounterVec
	requestsResolved *prometheus.CounterVec
	activeSessions   prometheus.Gauge
	offerLatency     *prometheus.HistogramVec
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, *prometheus.CounterVec, *prometheus.CounterVec, prometheus.Gauge, *prometheus.HistogramVec) {
	pub := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offers_published_total",
			Help: "Number of offers published to vets",
		},
		[]string{"round"},
	)
	out := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offer_outcomes_total",
			Help: "Terminal outcome of individual offers",
		},
		[]string{"outcome"},
	)
	res := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requests_resolved_total",
			Help: "How dispatch requests left the matching process",
		},
		[]string{"resolution"},
	)
	act := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_offer_sessions",
			Help: "Number of matching sessions currently running",
		},
	)
	lat := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "offer_response_latency_seconds",
			Help:    "Latency from offer publication to the vet's response",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
	return pub, out, res, act, lat
}

func init() {
	offersPublished, offerOutcomes, requestsResolved, activeSessions, offerLatency = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{offersPublished, offerOutcomes, requestsResolved, activeSessions, offerLatency} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}
}
