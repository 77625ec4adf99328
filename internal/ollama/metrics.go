package ollama

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generateRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hearthtale",
		Subsystem: "generate",
		Name:      "requests_total",
		Help:      "Generation requests by result",
	}, []string{"result"})

	generateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hearthtale",
		Subsystem: "generate",
		Name:      "duration_seconds",
		Help:      "Generation latency including retries",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
	})
)
