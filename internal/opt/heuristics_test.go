package opt

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertionHeuristicsCoverEveryOrder(t *testing.T) {
	inst := gridInstance(t, 9)
	cf := distanceOnly()
	for _, kind := range InsertionHeuristicTypes {
		t.Run(kind.String(), func(t *testing.T) {
			h, err := NewInsertionHeuristic(kind, cf, 3)
			require.NoError(t, err)
			ps := NewPartialSolution(inst)
			s, err := h.Run(ps)
			require.NoError(t, err)
			require.NoError(t, s.Validate(inst))
			assert.Len(t, ps.Pending(), 9, "the partial solution is left as it was")

			var sum float64
			for _, did := range s.DriverIDs() {
				sum += s.Route(did).Cost()
			}
			assert.InDelta(t, sum, s.Cost(), 1e-9)
			assert.Len(t, s.Assignments(), 9)
		})
	}
}

func TestInsertionUnserviceableOrder(t *testing.T) {
	inst := mustInstance(t,
		[]Driver{driver(1, 2, loc(0, 0)), driver(2, 3, loc(0, 0))},
		[]Order{order(1, loc(0, 0), loc(0, 0.01), 1), order(2, loc(0, 0), loc(0, 0.01), 4)})
	for _, kind := range InsertionHeuristicTypes {
		h, err := NewInsertionHeuristic(kind, distanceOnly(), 2)
		require.NoError(t, err)
		_, err = h.Run(NewPartialSolution(inst))
		assert.ErrorIs(t, err, ErrUnserviceableOrder)
		assert.ErrorContains(t, err, "order 2")
	}
}

func TestRegretHorizonValidation(t *testing.T) {
	_, err := NewInsertionHeuristic(RegretInsertion, distanceOnly(), 1)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = NewConstructionHeuristic(RegretInsertion, distanceOnly(), 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = NewConstructionHeuristic(RegretInsertion, distanceOnly(), 1)
	assert.NoError(t, err)
	_, err = NewInsertionHeuristic(InsertionHeuristicType(7), distanceOnly(), 2)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRegretOneFallsBackToCheapestThenLowestID(t *testing.T) {
	inst := mustInstance(t,
		[]Driver{driver(1, 10, loc(0, 0))},
		[]Order{
			order(5, loc(0, 0.5), loc(0, 0.6), 1),
			order(4, loc(0, 0.01), loc(0, 0.02), 1),
			order(3, loc(0, 0.01), loc(0, 0.02), 1),
		})
	tbl := newInsertionTable(NewPartialSolution(inst), distanceOnly())
	require.NoError(t, tbl.init())
	assert.Equal(t, 3, tbl.maxRegretOrder(1))
	assert.Equal(t, 3, tbl.cheapestOrder())
}

func TestRegretPrefersOrdersWithFewOptions(t *testing.T) {
	// order 9 only fits the large driver, so it goes first even though its
	// regret cannot be computed over the full horizon
	inst := mustInstance(t,
		[]Driver{driver(1, 1, loc(0, 0)), driver(2, 5, loc(0, 0.2))},
		[]Order{order(2, loc(0, 0.01), loc(0, 0.02), 1), order(9, loc(0, 0.3), loc(0, 0.31), 4)})
	tbl := newInsertionTable(NewPartialSolution(inst), distanceOnly())
	require.NoError(t, tbl.init())
	assert.Equal(t, 9, tbl.maxRegretOrder(2))
}

func TestTopK(t *testing.T) {
	imp := func(driverID int, delta float64) OrderInsertionImpact {
		return OrderInsertionImpact{Insertion: OrderInsertion{DriverID: driverID}, CostDelta: delta}
	}
	top := newTopK(2)
	assert.Equal(t, 0.0, top.regret())
	for _, i := range []OrderInsertionImpact{imp(1, 5), imp(2, 3), imp(3, 4), imp(4, 1)} {
		top.offer(i)
	}
	require.Equal(t, 2, top.len())
	assert.Equal(t, 4, top.best().Insertion.DriverID)
	assert.Equal(t, 2, top.worst().Insertion.DriverID)
	assert.Equal(t, 2.0, top.regret())

	ties := newTopK(2)
	ties.offer(imp(9, 1))
	ties.offer(imp(3, 1))
	ties.offer(imp(5, 1))
	assert.Equal(t, 3, ties.best().Insertion.DriverID)
	assert.Equal(t, 5, ties.worst().Insertion.DriverID)
}

func TestRemovalHeuristicsKeepPartitions(t *testing.T) {
	inst := gridInstance(t, 8)
	h, err := NewInsertionHeuristic(GreedyInsertion, distanceOnly(), 2)
	require.NoError(t, err)
	s, err := h.Run(NewPartialSolution(inst))
	require.NoError(t, err)
	fp := s.Fingerprint()

	cfg := testConfig()
	for _, kind := range RemovalHeuristicTypes {
		for _, k := range []int{1, 3, 20} {
			cfg.NumOrdersToRemove = k
			rh, err := NewRemovalHeuristic(kind, inst, cfg, rand.New(rand.NewSource(int64(k))))
			require.NoError(t, err)
			ps, err := rh.Run(s)
			require.NoError(t, err, kind.String())
			require.NoError(t, ps.Validate(inst), kind.String())
			assert.Len(t, ps.Pending(), min(k, 8), kind.String())
			assert.Equal(t, fp, s.Fingerprint(), "the source solution is not modified")
		}
	}
}

func TestGreedyRemovalTakesCostliestOrder(t *testing.T) {
	inst := mustInstance(t,
		[]Driver{driver(1, 10, loc(0, 0))},
		[]Order{order(1, loc(0, 0.01), loc(0, 0.02), 1), order(2, loc(0, 1), loc(0, 1.01), 1)})
	h, err := NewInsertionHeuristic(GreedyInsertion, distanceOnly(), 2)
	require.NoError(t, err)
	s, err := h.Run(NewPartialSolution(inst))
	require.NoError(t, err)

	cfg := testConfig()
	cfg.NumOrdersToRemove = 1
	cfg.RandomizationCoefficient = 1e6
	rh, err := NewRemovalHeuristic(GreedyRemoval, inst, cfg, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	ps, err := rh.Run(s)
	require.NoError(t, err)
	require.Len(t, ps.Pending(), 1)
	assert.Equal(t, 2, ps.Pending()[0].ID)
}

func TestShawRemovalTakesRelatedOrders(t *testing.T) {
	near, far := loc(52.50, 13.40), loc(53.50, 14.40)
	inst := mustInstance(t,
		[]Driver{driver(1, 10, near), driver(2, 10, far)},
		[]Order{
			order(1, loc(52.501, 13.401), loc(52.502, 13.402), 1),
			order(2, loc(52.502, 13.401), loc(52.503, 13.402), 1),
			order(3, loc(53.501, 14.401), loc(53.502, 14.402), 1),
			order(4, loc(53.502, 14.401), loc(53.503, 14.402), 1),
		})
	h, err := NewInsertionHeuristic(GreedyInsertion, distanceOnly(), 2)
	require.NoError(t, err)
	s, err := h.Run(NewPartialSolution(inst))
	require.NoError(t, err)

	cluster := map[int]int{1: 0, 2: 0, 3: 1, 4: 1}
	cfg := testConfig()
	cfg.NumOrdersToRemove = 2
	cfg.RandomizationCoefficient = 1e6
	for seed := int64(1); seed <= 20; seed++ {
		rh, err := NewRemovalHeuristic(ShawRemoval, inst, cfg, rand.New(rand.NewSource(seed)))
		require.NoError(t, err)
		ps, err := rh.Run(s)
		require.NoError(t, err)
		pending := ps.Pending()
		require.Len(t, pending, 2)
		assert.Equal(t, cluster[pending[0].ID], cluster[pending[1].ID], "seed %d removed %d and %d", seed, pending[0].ID, pending[1].ID)
	}
}

func TestOrderSimilarity(t *testing.T) {
	sim := DefaultConfig().Similarity
	a := order(1, loc(0, 0), loc(0, 0.01), 2)
	b := order(2, loc(0, 0), loc(0, 0.01), 4)
	at := TaskTimes{Pickup: 100, Delivery: 300}
	assert.Equal(t, 0.0, sim.Score(a, a, at, at))
	// only the load differs: 2 items over a range of 20, weighted by 2
	assert.InDelta(t, 0.2, sim.Score(a, b, at, at), 1e-12)
	assert.Equal(t, 0.0, ScalingFunction{Min: 3, Max: 3}.Scale(10))
}

func TestHeuristicManagerReinforcement(t *testing.T) {
	m := NewHeuristicManager(rand.New(rand.NewSource(1)), 0.5, Rewards{NewBest: 33, Improved: 13, Accepted: 9})
	assert.Equal(t, [2]float64{0.5, 0.5}, m.InsertionWeights())

	m.UpdateStatistics(GreedyInsertion, ShawRemoval, NewGlobalBest)
	m.UpdateStatistics(GreedyInsertion, ShawRemoval, Rejected)
	st := m.InsertionStatistics(GreedyInsertion)
	assert.Equal(t, 2, st.Uses)
	assert.Equal(t, 1, st.NewBest)
	assert.Equal(t, 33.0, st.Score)

	m.ReinforceWeights()
	ins := m.InsertionWeights()
	assert.InDelta(t, 0.25+0.5*33/2, ins[GreedyInsertion], 1e-12)
	assert.InDelta(t, 0.25, ins[RegretInsertion], 1e-12, "an unused heuristic only decays")
	rem := m.RemovalWeights()
	for _, w := range rem {
		assert.False(t, math.IsNaN(w))
	}
	assert.InDelta(t, 1.0/6, rem[RandomRemoval], 1e-12)

	m.ClearStatistics()
	assert.Equal(t, HeuristicStatistics{}, m.RemovalStatistics(ShawRemoval))
	assert.Equal(t, ins, m.InsertionWeights(), "weights survive a new segment")
}

func TestSelectOp(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 100; i++ {
		assert.Equal(t, 1, selectOp([]float64{0, 2, 0}, rng))
		got := selectOp([]float64{0, 0, 0}, rng)
		assert.True(t, got >= 0 && got < 3)
	}
}

func TestAnnealingScheme(t *testing.T) {
	a := NewAnnealingScheme(1000, 0.5)
	assert.InDelta(t, 50/math.Ln2, a.InitialTemperature(), 1e-9)
	assert.InDelta(t, 0.5, a.AcceptanceProbability(1050, 1000), 1e-12)
	assert.Equal(t, 1.0, a.AcceptanceProbability(900, 1000))
	a.Cool()
	assert.InDelta(t, a.InitialTemperature()/2, a.Temperature(), 1e-12)

	zero := NewAnnealingScheme(0, 0.9)
	assert.Equal(t, 0.0, zero.AcceptanceProbability(1, 0))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	for name, mutate := range map[string]func(*Config){
		"cooling":    func(c *Config) { c.CoolingRate = 1.5 },
		"iterations": func(c *Config) { c.NumIterations = 0 },
		"regret":     func(c *Config) { c.RegretHorizon = 1 },
		"reaction":   func(c *Config) { c.ReactionFactor = -0.1 },
		"weight":     func(c *Config) { c.Cost.DistanceWeight = -1 },
	} {
		cfg := DefaultConfig()
		mutate(&cfg)
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidInput, name)
	}
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "optimizer.yaml")
	require.NoError(t, os.WriteFile(path, []byte("num_iterations: 50\nconstruction_heuristic: greedy\ncost:\n  distance: 2\n"), 0o600))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.NumIterations)
	assert.Equal(t, GreedyInsertion, cfg.ConstructionHeuristic)
	assert.Equal(t, 2.0, cfg.Cost.DistanceWeight)
	assert.Equal(t, 1e6, cfg.Cost.LateCountWeight)
	assert.Equal(t, DefaultConfig().Similarity, cfg.Similarity)

	require.NoError(t, os.WriteFile(path, []byte("cooling_rate: 2\n"), 0o600))
	_, err = LoadConfig(path)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestConfigOverlay(t *testing.T) {
	base := DefaultConfig()
	cfg, err := base.Overlay(map[string]any{
		"numIterations":         200,
		"constructionHeuristic": "greedy",
		"cost":                  map[string]any{"travelTime": 0.5},
	})
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.NumIterations)
	assert.Equal(t, GreedyInsertion, cfg.ConstructionHeuristic)
	assert.Equal(t, 0.5, cfg.Cost.TravelTimeWeight)
	assert.Equal(t, base.Cost.DistanceWeight, cfg.Cost.DistanceWeight)
	assert.Equal(t, 1000, base.NumIterations, "the receiver is not modified")

	_, err = base.Overlay(map[string]any{"coolingRate": 3})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = base.Overlay(map[string]any{"constructionHeuristic": "tabu"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
