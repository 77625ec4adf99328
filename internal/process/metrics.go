package process

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	serverStarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hearthtale",
		Subsystem: "server",
		Name:      "starts_total",
		Help:      "Server start attempts by result",
	}, []string{"result"})

	serverStops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hearthtale",
		Subsystem: "server",
		Name:      "stops_total",
		Help:      "Server stops by mode (graceful, forced, exited)",
	}, []string{"mode"})

	serverUp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "hearthtale",
		Subsystem: "server",
		Name:      "up",
		Help:      "1 while the managed server is running",
	})

	outputLines = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hearthtale",
		Subsystem: "server",
		Name:      "output_lines_total",
		Help:      "Lines read from the server output streams",
	}, []string{"source"})

	readinessProbes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hearthtale",
		Name:      "readiness_probes_total",
		Help:      "Readiness probes by result",
	}, []string{"result"})
)
