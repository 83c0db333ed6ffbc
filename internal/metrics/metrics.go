package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)

	// SolveRuns counts finished optimizer runs by construction heuristic and status
	SolveRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "solve_runs_total", Help: "Optimizer runs by algorithm and status."},
		[]string{"algo", "status"},
	)
	// SolveDuration records optimizer wall time in seconds
	SolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "solve_duration_seconds", Help: "Optimizer run duration in seconds.", Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}},
		[]string{"algo"},
	)
	// SolveBestCost records the best cost reached by each successful run
	SolveBestCost = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "solve_best_cost", Help: "Best solution cost per run.", Buckets: prometheus.ExponentialBuckets(1, 4, 12)},
		[]string{"algo"},
	)
	// SolveIterations counts search iterations by outcome
	SolveIterations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "solve_iterations_total", Help: "Search iterations by outcome."},
		[]string{"outcome"},
	)
	// HeuristicSelections counts how often each heuristic was drawn
	HeuristicSelections = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "solve_heuristic_selections_total", Help: "Heuristic selections by kind and name."},
		[]string{"kind", "heuristic"},
	)
	// HeuristicWeight exposes the weights after the latest segment boundary
	HeuristicWeight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "solve_heuristic_weight", Help: "Heuristic weight after the latest segment."},
		[]string{"kind", "heuristic"},
	)
	// SolvesInFlight is the number of optimizer runs currently executing
	SolvesInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "solves_in_flight", Help: "Optimizer runs currently executing."},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(WebhookLatency)
		Registry.MustRegister(SolveRuns, SolveDuration, SolveBestCost, SolveIterations, HeuristicSelections, HeuristicWeight, SolvesInFlight)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	RegisterDefault()
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveRun records a finished optimizer run. bestCost is ignored for failed runs.
func ObserveRun(algo, status string, d time.Duration, bestCost float64) {
	SolveRuns.WithLabelValues(algo, status).Inc()
	SolveDuration.WithLabelValues(algo).Observe(d.Seconds())
	if status == "succeeded" {
		SolveBestCost.WithLabelValues(algo).Observe(bestCost)
	}
}
