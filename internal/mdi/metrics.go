package mdi

import "github.com/prometheus/client_golang/prometheus"

// Metric label values for payload direction.
const (
	directionSend = "send"
	directionRecv = "recv"
)

var (
	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "electric_mdi_commands_total",
			Help: "Total number of command verbs sent, by verb.",
		},
		[]string{"command"},
	)

	payloadElements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "electric_mdi_payload_elements_total",
			Help: "Total number of payload elements transferred, by direction and datatype.",
		},
		[]string{"direction", "type"},
	)

	recvWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "electric_mdi_recv_wait_seconds",
			Help:    "Time spent blocked waiting for an engine payload, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(commandsTotal)
	prometheus.MustRegister(payloadElements)
	prometheus.MustRegister(recvWait)

	for _, cmd := range Commands() {
		commandsTotal.WithLabelValues(string(cmd))
	}
}
