package driver

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/seantiz/electric/internal/model"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "electric_driver_runs_total",
			Help: "Total number of driver runs, by final status.",
		},
		[]string{"status"},
	)

	eventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "electric_driver_events_dropped_total",
			Help: "Exchange events dropped because a subscriber fell behind.",
		},
	)
)

func init() {
	prometheus.MustRegister(runsTotal)
	prometheus.MustRegister(eventsDropped)

	runsTotal.WithLabelValues(model.StatusCompleted)
	runsTotal.WithLabelValues(model.StatusFailed)
}
