package session

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/seantiz/electric/internal/scenario"
)

var (
	stepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "electric_session_steps_total",
			Help: "Total number of completed loop iterations, by scenario.",
		},
		[]string{"scenario"},
	)

	exchangeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "electric_session_exchange_duration_seconds",
			Help:    "Time from sending a command to completing its payload transfer, in seconds.",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"command"},
	)
)

func init() {
	prometheus.MustRegister(stepsTotal)
	prometheus.MustRegister(exchangeDuration)

	for _, name := range scenario.Names() {
		stepsTotal.WithLabelValues(name)
	}
}
