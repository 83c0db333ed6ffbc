package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdptw/internal/opt"
)

// sample returns the value of the counter, gauge or histogram count matching
// name and labels, or 0 when the series does not exist yet.
func sample(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := Registry.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			got := map[string]string{}
			for _, lp := range m.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			for k, v := range labels {
				if got[k] != v {
					continue next
				}
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return 0
}

func TestSearchObserver(t *testing.T) {
	RegisterDefault()
	before := sample(t, "solve_iterations_total", map[string]string{"outcome": "new_global_best"})
	shaw := sample(t, "solve_heuristic_selections_total", map[string]string{"kind": "removal", "heuristic": "shaw"})

	var obs opt.Observer = SearchObserver{}
	obs.OnIteration(opt.IterationEvent{Iteration: 1, Removal: opt.ShawRemoval, Insertion: opt.RegretInsertion, Result: opt.NewGlobalBest})
	obs.OnIteration(opt.IterationEvent{Iteration: 2, Removal: opt.ShawRemoval, Insertion: opt.GreedyInsertion, Result: opt.Rejected})

	assert.Equal(t, before+1, sample(t, "solve_iterations_total", map[string]string{"outcome": "new_global_best"}))
	assert.Equal(t, shaw+2, sample(t, "solve_heuristic_selections_total", map[string]string{"kind": "removal", "heuristic": "shaw"}))

	obs.OnSegment(opt.WeightSnapshot{Iteration: 100, Removal: [3]float64{1, 2, 3}, Insertion: [2]float64{4, 5}})
	assert.Equal(t, 3.0, sample(t, "solve_heuristic_weight", map[string]string{"kind": "removal", "heuristic": "shaw"}))
	assert.Equal(t, 5.0, sample(t, "solve_heuristic_weight", map[string]string{"kind": "insertion", "heuristic": "regret"}))
}

type countingObserver struct{ iterations, segments int }

func (c *countingObserver) OnIteration(opt.IterationEvent) { c.iterations++ }
func (c *countingObserver) OnSegment(opt.WeightSnapshot)   { c.segments++ }

func TestObserversFanOut(t *testing.T) {
	a, b := &countingObserver{}, &countingObserver{}
	obs := Observers{a, b}
	obs.OnIteration(opt.IterationEvent{})
	obs.OnSegment(opt.WeightSnapshot{})
	assert.Equal(t, 1, a.iterations)
	assert.Equal(t, 1, b.segments)
}

func TestObserveRun(t *testing.T) {
	RegisterDefault()
	ok := sample(t, "solve_runs_total", map[string]string{"algo": "greedy", "status": "succeeded"})
	costs := sample(t, "solve_best_cost", map[string]string{"algo": "greedy"})

	ObserveRun("greedy", "succeeded", 20*time.Millisecond, 42)
	ObserveRun("greedy", "failed", time.Millisecond, 0)

	assert.Equal(t, ok+1, sample(t, "solve_runs_total", map[string]string{"algo": "greedy", "status": "succeeded"}))
	assert.Equal(t, costs+1, sample(t, "solve_best_cost", map[string]string{"algo": "greedy"}), "failed runs carry no cost")
}

func TestHandlerExposesSolverMetrics(t *testing.T) {
	ObserveRun("regret", "succeeded", time.Second, 10)
	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `solve_runs_total{algo="regret",status="succeeded"}`))
	assert.True(t, strings.Contains(string(body), "go_goroutines"))
}
