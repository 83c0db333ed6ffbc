package opt

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	events   []IterationEvent
	segments []WeightSnapshot
}

func (o *recordingObserver) OnIteration(e IterationEvent) { o.events = append(o.events, e) }
func (o *recordingObserver) OnSegment(s WeightSnapshot)   { o.segments = append(o.segments, s) }

func TestSolveTwoOrdersTwoDrivers(t *testing.T) {
	inst := mustInstance(t,
		[]Driver{driver(1, 5, loc(0, 0)), driver(2, 5, loc(1, 1))},
		[]Order{order(10, loc(0, 0.01), loc(0, 0.02), 1), order(20, loc(1, 1.01), loc(1, 1.02), 1)})

	s, m, err := Solve(context.Background(), inst, testConfig(), 7)
	require.NoError(t, err)
	require.NoError(t, s.Validate(inst))

	got := map[int]int{}
	for _, a := range s.Assignments() {
		got[a.OrderID] = a.DriverID
		assert.LessOrEqual(t, a.PickupTime, a.DeliveryTime)
	}
	assert.Equal(t, map[int]int{10: 1, 20: 2}, got)
	assert.LessOrEqual(t, m.BestCost, m.InitialCost)
	assert.Equal(t, 2, s.Summary().DriversUsed)
}

func TestSolveCapacityForcesSequentialService(t *testing.T) {
	inst := mustInstance(t,
		[]Driver{driver(1, 3, loc(0, 0))},
		[]Order{order(1, loc(0, 0.01), loc(0, 0.02), 2), order(2, loc(0, 0.011), loc(0, 0.021), 2)})

	s, _, err := Solve(context.Background(), inst, testConfig(), 3)
	require.NoError(t, err)
	r := s.Route(1)
	require.Equal(t, 4, r.Len())
	for _, load := range r.Loads() {
		assert.LessOrEqual(t, load, 3)
	}
	tasks := r.Tasks()
	assert.Equal(t, tasks[0].OrderID, tasks[1].OrderID, "an order is delivered before the next pickup")
	assert.Equal(t, tasks[2].OrderID, tasks[3].OrderID)
}

func TestSolveUnserviceable(t *testing.T) {
	tooBig := mustInstance(t,
		[]Driver{driver(1, 2, loc(0, 0))},
		[]Order{order(1, loc(0, 0), loc(0, 0.01), 3)})
	_, _, err := Solve(context.Background(), tooBig, testConfig(), 1)
	assert.ErrorIs(t, err, ErrNoSolution)
	assert.ErrorIs(t, err, ErrUnserviceableOrder)

	late := NewOrder(1, loc(0, 0), loc(0, 0.05), 1, Unbounded(0), TimeWindow{Start: 0, End: 10})
	hard := mustInstance(t, []Driver{driver(1, 2, loc(0, 0))}, []Order{late}, WithHardTimeWindows())
	_, _, err = Solve(context.Background(), hard, testConfig(), 1)
	assert.ErrorIs(t, err, ErrUnserviceableOrder)

	soft := mustInstance(t, []Driver{driver(1, 2, loc(0, 0))}, []Order{late})
	s, _, err := Solve(context.Background(), soft, testConfig(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Summary().LateDeliveries)
}

func TestSolveIsDeterministic(t *testing.T) {
	inst := gridInstance(t, 10)
	cfg := testConfig()

	s1, m1, err := Solve(context.Background(), inst, cfg, 42)
	require.NoError(t, err)
	s2, m2, err := Solve(context.Background(), inst, cfg, 42)
	require.NoError(t, err)

	assert.Equal(t, s1.Fingerprint(), s2.Fingerprint())
	assert.Equal(t, s1.Cost(), s2.Cost())
	assert.Equal(t, m1.RemovalSelects, m2.RemovalSelects)
	assert.Equal(t, m1.InsertSelects, m2.InsertSelects)
	assert.Equal(t, m1.Snapshots, m2.Snapshots)
}

func TestSimulatedAnnealingMetrics(t *testing.T) {
	inst := gridInstance(t, 8)
	cfg := testConfig()
	obs := &recordingObserver{}
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.InfoLevel)

	sa, err := New(inst, cfg, rand.New(rand.NewSource(11)), WithObserver(obs), WithLogger(logger))
	require.NoError(t, err)
	best, m, err := sa.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, best.Validate(inst))

	assert.Equal(t, cfg.NumIterations-1, m.Iterations)
	assert.Equal(t, m.Iterations, m.NewBest+m.Improved+m.Accepted+m.Rejected)
	assert.LessOrEqual(t, m.Duplicates, m.Rejected)
	assert.Equal(t, best.Cost(), m.BestCost)
	assert.LessOrEqual(t, m.BestCost, m.InitialCost)
	assert.LessOrEqual(t, m.BestCost, m.FinalCost)
	assert.Less(t, m.FinalTemperature, m.InitialTemperature)

	var removals, insertions int
	for i := range m.RemovalSelects {
		removals += m.RemovalSelects[i]
	}
	for i := range m.InsertSelects {
		insertions += m.InsertSelects[i]
	}
	assert.Equal(t, m.Iterations, removals)
	assert.Equal(t, m.Iterations, insertions)

	require.Len(t, obs.events, m.Iterations)
	assert.Len(t, obs.segments, (cfg.NumIterations-1)/cfg.SegmentSize)
	assert.Equal(t, obs.segments, m.Snapshots)
	for i, e := range obs.events {
		assert.Equal(t, i+1, e.Iteration)
		assert.LessOrEqual(t, e.BestCost, e.CurrentCost)
	}

	require.NotEmpty(t, hook.AllEntries())
	assert.Equal(t, fmt.Sprintf("initial solution with cost %.2f", m.InitialCost), hook.AllEntries()[0].Message)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	inst := gridInstance(t, 6)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	best, m, err := Solve(ctx, inst, testConfig(), 5)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, best, "the constructed solution is still returned")
	require.NoError(t, best.Validate(inst))
	assert.Equal(t, 0, m.Iterations)
	assert.Equal(t, m.InitialCost, m.BestCost)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	inst := gridInstance(t, 2)
	cfg := testConfig()
	cfg.SegmentSize = 0
	_, err := New(inst, cfg, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = New(inst, testConfig(), nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRecordMetrics(t *testing.T) {
	RecordMetrics("t_metrics", "2024-05-01", "regret", Metrics{Iterations: 3, BestCost: 12})
	RecordMetrics("t_metrics", "2024-05-01", "greedy", Metrics{Iterations: 4})
	RecordMetrics("t_metrics", "2024-05-02", "greedy", Metrics{Iterations: 5})

	got := GetMetrics("t_metrics", "2024-05-01")
	require.Len(t, got, 2)
	assert.Equal(t, 12.0, got["regret"].BestCost)
	assert.Empty(t, GetMetrics("t_other", "2024-05-01"))
}

func TestGreedyInsertionTwoOrdersOneDriver(t *testing.T) {
	d := Driver{ID: 1, Capacity: 10, Start: loc(52.50, 13.40), Shift: TimeWindow{Start: 0, End: 100000}}
	orders := []Order{
		NewOrder(1, loc(52.51, 13.41), loc(52.52, 13.43), 4, Unbounded(0), TimeWindow{Start: 0, End: 50000}),
		NewOrder(2, loc(52.49, 13.39), loc(52.50, 13.42), 6, Unbounded(600), TimeWindow{Start: 0, End: 50000}),
	}
	inst := mustInstance(t, []Driver{d}, orders)

	h, err := NewInsertionHeuristic(GreedyInsertion, DefaultConfig().Cost, 2)
	require.NoError(t, err)
	s, err := h.Run(NewPartialSolution(inst))
	require.NoError(t, err)
	require.NoError(t, s.Validate(inst))
	assert.ElementsMatch(t, []int{1, 2}, s.Route(1).OrderIDs())
	assert.Equal(t, 0, s.Route(1).NumLateDeliveries())

	cfg := testConfig()
	cfg.ConstructionHeuristic = GreedyInsertion
	best, _, err := Solve(context.Background(), inst, cfg, 5)
	require.NoError(t, err)
	assert.Len(t, best.Assignments(), 2)
	assert.Equal(t, 0, best.Summary().LateDeliveries)
}

func TestRejectedCandidateCanBeAcceptedLater(t *testing.T) {
	d := driver(1, 5, loc(0, 0))
	a := order(1, loc(0, 0.01), loc(0, 0.02), 1)
	b := order(2, loc(0, 0.03), loc(0, 0.04), 1)
	inst := mustInstance(t, []Driver{d}, []Order{a, b})
	solution := func(tasks ...Task) *Solution {
		r, err := NewRoute(d).derive(tasks, distanceOnly())
		require.NoError(t, err)
		return newSolution(map[int]*Route{1: r})
	}
	short := solution(a.Pickup, a.Delivery, b.Pickup, b.Delivery)
	detour := solution(b.Pickup, b.Delivery, a.Pickup, a.Delivery)
	long := solution(b.Pickup, a.Pickup, b.Delivery, a.Delivery)
	require.Less(t, short.Cost(), detour.Cost())
	require.Less(t, detour.Cost(), long.Cost())

	sa, err := New(inst, testConfig(), rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	cold := NewAnnealingScheme(0, 0.99)
	seen := map[string]struct{}{}

	res, dup := sa.judge(seen, detour, short, short, cold)
	assert.Equal(t, Rejected, res)
	assert.False(t, dup)
	assert.Empty(t, seen, "rejected candidates are not remembered")

	res, dup = sa.judge(seen, detour, long, long, cold)
	assert.Equal(t, NewGlobalBest, res)
	assert.False(t, dup)

	res, dup = sa.judge(seen, detour, long, long, cold)
	assert.Equal(t, Rejected, res)
	assert.True(t, dup, "an accepted solution is not accepted twice")
}
