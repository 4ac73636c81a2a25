package source

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus domain metrics.
var (
	samplesEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftwatch_source_samples_emitted_total",
			Help: "Total samples emitted, by stream kind.",
		},
		[]string{"kind"},
	)
	probeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "driftwatch_source_probe_failures_total",
			Help: "Total probe attempts that produced no RTT sample.",
		},
	)
)
