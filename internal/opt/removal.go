package opt

import (
	"cmp"
	"fmt"
	"math"
	"math/rand"
	"slices"
	"strings"
)

type RemovalHeuristicType int

const (
	RandomRemoval RemovalHeuristicType = iota
	GreedyRemoval
	ShawRemoval

	numRemovalHeuristics = 3
)

// RemovalHeuristicTypes lists the removal variants in selection order.
var RemovalHeuristicTypes = [numRemovalHeuristics]RemovalHeuristicType{RandomRemoval, GreedyRemoval, ShawRemoval}

func (t RemovalHeuristicType) String() string {
	switch t {
	case RandomRemoval:
		return "random"
	case GreedyRemoval:
		return "greedy"
	case ShawRemoval:
		return "shaw"
	}
	return fmt.Sprintf("RemovalHeuristicType(%d)", int(t))
}

func ParseRemovalHeuristicType(s string) (RemovalHeuristicType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "random":
		return RandomRemoval, nil
	case "greedy", "worst":
		return GreedyRemoval, nil
	case "shaw":
		return ShawRemoval, nil
	}
	return 0, fmt.Errorf("%w: unknown removal heuristic %q", ErrInvalidInput, s)
}

// RemovalHeuristic turns a solution into a partial solution by taking
// orders off their routes.
type RemovalHeuristic struct {
	kind          RemovalHeuristicType
	inst          *Instance
	cost          CostFunction
	rng           *rand.Rand
	numOrders     int
	randomization float64
	similarity    OrderSimilarity
}

// NewRemovalHeuristic builds a removal heuristic drawing from rng.
func NewRemovalHeuristic(kind RemovalHeuristicType, inst *Instance, cfg Config, rng *rand.Rand) (*RemovalHeuristic, error) {
	switch kind {
	case RandomRemoval, GreedyRemoval, ShawRemoval:
	default:
		return nil, fmt.Errorf("%w: unknown removal heuristic %d", ErrInvalidInput, int(kind))
	}
	if rng == nil {
		return nil, fmt.Errorf("%w: nil random source", ErrInvalidInput)
	}
	return &RemovalHeuristic{
		kind:          kind,
		inst:          inst,
		cost:          cfg.Cost,
		rng:           rng,
		numOrders:     cfg.NumOrdersToRemove,
		randomization: cfg.RandomizationCoefficient,
		similarity:    cfg.Similarity,
	}, nil
}

func (h *RemovalHeuristic) Type() RemovalHeuristicType { return h.kind }

// Run removes up to the configured number of orders from a copy of s.
func (h *RemovalHeuristic) Run(s *Solution) (*PartialSolution, error) {
	owners := s.orderOwners()
	k := min(h.numOrders, len(owners))
	routes := cloneRoutes(s.routes)
	var (
		removed []int
		err     error
	)
	switch h.kind {
	case RandomRemoval:
		removed = h.pickRandom(sortedKeys(owners), k)
	case GreedyRemoval:
		removed, err = h.pickWorst(routes, k)
	case ShawRemoval:
		removed = h.pickRelated(s, sortedKeys(owners), k)
	}
	if err != nil {
		return nil, err
	}
	ps := &PartialSolution{routes: routes, pending: make([]Order, 0, len(removed))}
	for _, oid := range removed {
		r := routes[owners[oid]]
		if r.HasOrder(oid) {
			if err := r.Remove(oid, h.cost); err != nil {
				return nil, fmt.Errorf("remove order %d: %w", oid, err)
			}
		}
		o, _ := h.inst.Order(oid)
		ps.pending = append(ps.pending, o)
	}
	return ps, nil
}

// pickRandom samples k distinct ids without replacement.
func (h *RemovalHeuristic) pickRandom(ids []int, k int) []int {
	for i := 0; i < k; i++ {
		j := i + h.rng.Intn(len(ids)-i)
		ids[i], ids[j] = ids[j], ids[i]
	}
	return ids[:k]
}

// pickWorst repeatedly removes an order chosen near the top of the list of
// most beneficial removals. routes is modified in place.
func (h *RemovalHeuristic) pickWorst(routes map[int]*Route, k int) ([]int, error) {
	var impacts []OrderRemovalImpact
	for _, did := range sortedKeys(routes) {
		imps, err := h.routeRemovalImpacts(routes[did])
		if err != nil {
			return nil, err
		}
		impacts = append(impacts, imps...)
	}
	removed := make([]int, 0, k)
	for len(removed) < k && len(impacts) > 0 {
		slices.SortFunc(impacts, func(a, b OrderRemovalImpact) int {
			if c := cmp.Compare(a.CostDelta, b.CostDelta); c != 0 {
				return c
			}
			return cmp.Compare(a.OrderID, b.OrderID)
		})
		pick := impacts[h.randomizedIndex(len(impacts))]
		r := routes[pick.DriverID]
		if err := r.Remove(pick.OrderID, h.cost); err != nil {
			return nil, fmt.Errorf("remove order %d: %w", pick.OrderID, err)
		}
		removed = append(removed, pick.OrderID)
		impacts = slices.DeleteFunc(impacts, func(imp OrderRemovalImpact) bool { return imp.DriverID == pick.DriverID })
		imps, err := h.routeRemovalImpacts(r)
		if err != nil {
			return nil, err
		}
		impacts = append(impacts, imps...)
	}
	return removed, nil
}

func (h *RemovalHeuristic) routeRemovalImpacts(r *Route) ([]OrderRemovalImpact, error) {
	out := make([]OrderRemovalImpact, 0, len(r.orderIDs))
	for _, oid := range r.orderIDs {
		imp, err := removalImpact(r, oid, h.cost)
		if err != nil {
			return nil, fmt.Errorf("evaluate removal of order %d: %w", oid, err)
		}
		out = append(out, imp)
	}
	return out, nil
}

// pickRelated grows a cluster of similar orders around a random seed order.
func (h *RemovalHeuristic) pickRelated(s *Solution, ids []int, k int) []int {
	if k == 0 {
		return nil
	}
	times := s.orderTimes()
	seed := ids[h.rng.Intn(len(ids))]
	selected := []int{seed}
	unselected := slices.DeleteFunc(slices.Clone(ids), func(id int) bool { return id == seed })
	type ranked struct {
		id    int
		score float64
	}
	for len(selected) < k {
		baseID := selected[h.rng.Intn(len(selected))]
		base, _ := h.inst.Order(baseID)
		cands := make([]ranked, 0, len(unselected))
		for _, id := range unselected {
			o, _ := h.inst.Order(id)
			cands = append(cands, ranked{id: id, score: h.similarity.Score(base, o, times[baseID], times[id])})
		}
		slices.SortFunc(cands, func(a, b ranked) int {
			if c := cmp.Compare(a.score, b.score); c != 0 {
				return c
			}
			return cmp.Compare(a.id, b.id)
		})
		pick := cands[h.randomizedIndex(len(cands))].id
		selected = append(selected, pick)
		unselected = slices.DeleteFunc(unselected, func(id int) bool { return id == pick })
	}
	return selected
}

// randomizedIndex draws floor(U^p * size): p = 1 is uniform over the ranking
// and large p almost always returns the head.
func (h *RemovalHeuristic) randomizedIndex(size int) int {
	i := int(math.Floor(math.Pow(h.rng.Float64(), h.randomization) * float64(size)))
	return min(i, size-1)
}
