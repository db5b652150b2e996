package core

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	scans       *prometheus.CounterVec
	duration    prometheus.Histogram
	suspensions prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mealkit",
			Name:      "scans_total",
			Help:      "Scan attempts by outcome and rejection reason.",
		}, []string{"outcome", "reason"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mealkit",
			Name:      "scan_duration_seconds",
			Help:      "Time spent deciding a scan.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		suspensions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mealkit",
			Name:      "credential_suspensions_total",
			Help:      "Credentials suspended after a non-increasing assertion counter.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.scans, m.duration, m.suspensions)
	}
	return m
}
