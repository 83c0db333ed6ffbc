package opt

import (
	"sync"
)

type metricsKey struct {
	Tenant   string
	PlanDate string
	Algo     string
}

var (
	metricsMu sync.Mutex
	runStore  = map[metricsKey]Metrics{}
)

// RecordMetrics keeps the latest run metrics for a tenant, plan date and
// construction heuristic in process memory.
func RecordMetrics(tenant, planDate, algo string, m Metrics) {
	metricsMu.Lock()
	runStore[metricsKey{Tenant: tenant, PlanDate: planDate, Algo: algo}] = m
	metricsMu.Unlock()
}

// GetMetrics returns the recorded metrics of a plan date keyed by algorithm.
func GetMetrics(tenant, planDate string) map[string]Metrics {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	out := map[string]Metrics{}
	for k, v := range runStore {
		if k.Tenant == tenant && k.PlanDate == planDate {
			out[k.Algo] = v
		}
	}
	return out
}
