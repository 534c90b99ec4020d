package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Endpoint labels. Run IDs never reach a label; every request maps onto
// one of these.
const (
	endpointHealth    = "health"
	endpointMetrics   = "metrics"
	endpointRuns      = "runs"
	endpointRun       = "run"
	endpointExchanges = "exchanges"
	endpointEvents    = "events"
	endpointOther     = "other"
)

// endpoints maps chi route patterns to endpoint labels.
var endpoints = map[string]string{
	"/healthz":                endpointHealth,
	"/metrics":                endpointMetrics,
	"/v1/runs/":               endpointRuns,
	"/v1/runs/{id}":           endpointRun,
	"/v1/runs/{id}/exchanges": endpointExchanges,
	"/v1/runs/{id}/events":    endpointEvents,
}

var (
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "electric_api_requests_total",
			Help: "Status API requests, by endpoint and response code.",
		},
		[]string{"endpoint", "code"},
	)

	// Event streams last as long as a run, so they are left out.
	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "electric_api_request_duration_seconds",
			Help:    "Status API response time for non-streaming endpoints.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"endpoint"},
	)

	activeStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "electric_api_event_streams",
			Help: "Open run event streams.",
		},
	)
)

func init() {
	prometheus.MustRegister(apiRequestsTotal)
	prometheus.MustRegister(apiRequestDuration)
	prometheus.MustRegister(activeStreams)

	for _, ep := range endpoints {
		if ep != endpointEvents {
			apiRequestDuration.WithLabelValues(ep)
		}
	}
}

// metricsMiddleware records every request under its endpoint label.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		ep := endpointOf(r)
		apiRequestsTotal.WithLabelValues(ep, strconv.Itoa(status)).Inc()
		if ep != endpointEvents {
			apiRequestDuration.WithLabelValues(ep).Observe(time.Since(start).Seconds())
		}
	})
}

// endpointOf returns the endpoint label of the matched route.
func endpointOf(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return endpointOther
	}
	if ep, ok := endpoints[rctx.RoutePattern()]; ok {
		return ep
	}
	return endpointOther
}

// metricsHandler returns the Prometheus metrics handler.
func metricsHandler() http.Handler {
	return promhttp.Handler()
}
