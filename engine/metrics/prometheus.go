package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TestsTotal counts finished simulations by kind and outcome.
	TestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ott_lab_tests_total",
		Help: "Total simulated test sessions by kind and outcome.",
	}, []string{"kind", "outcome"})

	// TestDurationMS observes simulated session durations by kind.
	TestDurationMS = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ott_lab_test_duration_ms",
		Help:    "Simulated session duration in milliseconds by kind.",
		Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000, 45000},
	}, []string{"kind"})

	// KpiRequestsTotal counts KPI snapshot requests by coerced window.
	KpiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ott_lab_kpi_requests_total",
		Help: "Total KPI snapshot requests by time window.",
	}, []string{"range"})

	// StoreErrorsTotal counts persistence store failures seen by the engine.
	StoreErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ott_lab_store_errors_total",
		Help: "Total persistence store errors observed by the engine.",
	})
)

func init() {
	prometheus.MustRegister(TestsTotal, TestDurationMS, KpiRequestsTotal, StoreErrorsTotal)
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
