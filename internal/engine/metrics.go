package engine

import "github.com/prometheus/client_golang/prometheus"

var boundEngines = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "electric_engines_bound",
		Help: "Number of engines currently bound to a role.",
	},
)

func init() {
	prometheus.MustRegister(boundEngines)
}
