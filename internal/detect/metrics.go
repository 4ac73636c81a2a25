package detect

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus domain metrics.
var (
	samplesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftwatch_samples_processed_total",
			Help: "Total samples classified, by stream.",
		},
		[]string{"stream"},
	)
	anomaliesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftwatch_anomalies_total",
			Help: "Total anomalous samples, by stream and severity.",
		},
		[]string{"stream", "severity"},
	)
	zscoreObserved = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "driftwatch_zscore",
			Help:    "Z-scores of classified samples.",
			Buckets: []float64{0.5, 1, 1.5, 2, 2.5, 3, 4, 5, 10, 25, 100},
		},
	)
	alertsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "driftwatch_alerts_open",
			Help: "Number of currently open alerts.",
		},
	)
)
