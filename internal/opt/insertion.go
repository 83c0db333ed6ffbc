package opt

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

type InsertionHeuristicType int

const (
	GreedyInsertion InsertionHeuristicType = iota
	RegretInsertion

	numInsertionHeuristics = 2
)

// InsertionHeuristicTypes lists the insertion variants in selection order.
var InsertionHeuristicTypes = [numInsertionHeuristics]InsertionHeuristicType{GreedyInsertion, RegretInsertion}

func (t InsertionHeuristicType) String() string {
	switch t {
	case GreedyInsertion:
		return "greedy"
	case RegretInsertion:
		return "regret"
	}
	return fmt.Sprintf("InsertionHeuristicType(%d)", int(t))
}

func ParseInsertionHeuristicType(s string) (InsertionHeuristicType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "greedy", "greedy_insertion":
		return GreedyInsertion, nil
	case "regret", "regret_insertion", "regret_based_insertion":
		return RegretInsertion, nil
	}
	return 0, fmt.Errorf("%w: unknown insertion heuristic %q", ErrInvalidInput, s)
}

func (t InsertionHeuristicType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *InsertionHeuristicType) UnmarshalText(b []byte) error {
	v, err := ParseInsertionHeuristicType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// InsertionHeuristic completes a partial solution by inserting every pending order.
type InsertionHeuristic struct {
	kind          InsertionHeuristicType
	cost          CostFunction
	regretHorizon int
}

// NewInsertionHeuristic returns a repair heuristic for the search loop.
// Regret insertion needs a horizon above 1 to rank orders meaningfully.
func NewInsertionHeuristic(kind InsertionHeuristicType, cf CostFunction, regretHorizon int) (*InsertionHeuristic, error) {
	if kind == RegretInsertion && regretHorizon <= 1 {
		return nil, fmt.Errorf("%w: regret insertion requires a horizon above 1, got %d", ErrInvalidInput, regretHorizon)
	}
	return newInsertionHeuristic(kind, cf, regretHorizon)
}

// NewConstructionHeuristic returns a heuristic for building the initial
// solution. A regret horizon of 1 is accepted: every regret is then zero and
// orders go in by cheapest insertion, then by lowest id.
func NewConstructionHeuristic(kind InsertionHeuristicType, cf CostFunction, regretHorizon int) (*InsertionHeuristic, error) {
	if kind == RegretInsertion && regretHorizon < 1 {
		return nil, fmt.Errorf("%w: regret construction requires a positive horizon, got %d", ErrInvalidInput, regretHorizon)
	}
	return newInsertionHeuristic(kind, cf, regretHorizon)
}

func newInsertionHeuristic(kind InsertionHeuristicType, cf CostFunction, regretHorizon int) (*InsertionHeuristic, error) {
	switch kind {
	case GreedyInsertion, RegretInsertion:
	default:
		return nil, fmt.Errorf("%w: unknown insertion heuristic %d", ErrInvalidInput, int(kind))
	}
	if cf == nil {
		return nil, fmt.Errorf("%w: nil cost function", ErrInvalidInput)
	}
	return &InsertionHeuristic{kind: kind, cost: cf, regretHorizon: regretHorizon}, nil
}

func (h *InsertionHeuristic) Type() InsertionHeuristicType { return h.kind }

// Run inserts all pending orders and returns the completed solution. The
// input is not modified. It fails with ErrUnserviceableOrder when some order
// has no feasible placement on any route.
func (h *InsertionHeuristic) Run(ps *PartialSolution) (*Solution, error) {
	t := newInsertionTable(ps.Clone(), h.cost)
	if err := t.init(); err != nil {
		return nil, err
	}
	for len(t.pending) > 0 {
		var oid int
		switch h.kind {
		case GreedyInsertion:
			oid = t.cheapestOrder()
		case RegretInsertion:
			oid = t.maxRegretOrder(h.regretHorizon)
		}
		if err := t.commit(oid); err != nil {
			return nil, err
		}
	}
	return newSolution(t.routes), nil
}

// insertionTable keeps the best insertion of every pending order into every
// driver's current route. Only feasible entries are stored.
type insertionTable struct {
	cost    CostFunction
	routes  map[int]*Route
	drivers []int
	orders  map[int]Order
	pending []int // ascending
	impacts map[int]map[int]OrderInsertionImpact
}

func newInsertionTable(ps *PartialSolution, cf CostFunction) *insertionTable {
	t := &insertionTable{
		cost:    cf,
		routes:  ps.routes,
		drivers: ps.DriverIDs(),
		orders:  make(map[int]Order, len(ps.pending)),
		impacts: make(map[int]map[int]OrderInsertionImpact, len(ps.pending)),
	}
	for _, o := range ps.pending {
		t.orders[o.ID] = o
		t.pending = append(t.pending, o.ID)
	}
	slices.Sort(t.pending)
	return t
}

func (t *insertionTable) init() error {
	for _, oid := range t.pending {
		t.impacts[oid] = make(map[int]OrderInsertionImpact, len(t.drivers))
		for _, did := range t.drivers {
			if err := t.refresh(oid, did); err != nil {
				return err
			}
		}
		if len(t.impacts[oid]) == 0 {
			return unserviceable(oid)
		}
	}
	return nil
}

// refresh recomputes the best insertion of an order into one driver's route.
func (t *insertionTable) refresh(oid, did int) error {
	imp, err := FindBestOrderInsertion(t.routes[did], t.orders[oid], t.cost)
	if err != nil {
		if errors.Is(err, ErrInfeasibleRoute) {
			delete(t.impacts[oid], did)
			return nil
		}
		return err
	}
	t.impacts[oid][did] = imp
	return nil
}

// best returns the cheapest stored impact of an order; ties go to the lowest driver id.
func (t *insertionTable) best(oid int) (OrderInsertionImpact, bool) {
	var best OrderInsertionImpact
	found := false
	for _, did := range t.drivers {
		imp, ok := t.impacts[oid][did]
		if !ok {
			continue
		}
		if !found || imp.CostDelta < best.CostDelta {
			best, found = imp, true
		}
	}
	return best, found
}

// cheapestOrder picks the pending order with the globally smallest insertion cost.
func (t *insertionTable) cheapestOrder() int {
	chosen := -1
	var bestDelta float64
	for _, oid := range t.pending {
		imp, ok := t.best(oid)
		if !ok {
			continue
		}
		if chosen < 0 || imp.CostDelta < bestDelta {
			chosen, bestDelta = oid, imp.CostDelta
		}
	}
	return chosen
}

// maxRegretOrder picks the pending order that is most expensive to postpone.
// Orders with fewer than k feasible routes come first (fewest options first),
// then the largest regret, then the cheapest best insertion, then the lowest id.
func (t *insertionTable) maxRegretOrder(k int) int {
	chosen := -1
	var best regretScore
	for _, oid := range t.pending {
		top := newTopK(k)
		for _, did := range t.drivers {
			if imp, ok := t.impacts[oid][did]; ok {
				top.offer(imp)
			}
		}
		if top.len() == 0 {
			continue
		}
		sc := regretScore{options: top.len(), short: top.len() < k, regret: top.regret(), bestDelta: top.best().CostDelta}
		if chosen < 0 || sc.before(best) {
			chosen, best = oid, sc
		}
	}
	return chosen
}

type regretScore struct {
	options   int
	short     bool
	regret    float64
	bestDelta float64
}

// before reports whether a ranks strictly ahead of b. Equal scores keep the
// earlier (lower id) order.
func (a regretScore) before(b regretScore) bool {
	if a.short != b.short {
		return a.short
	}
	if a.short && a.options != b.options {
		return a.options < b.options
	}
	if a.regret != b.regret {
		return a.regret > b.regret
	}
	return a.bestDelta < b.bestDelta
}

// commit inserts the order at its best placement and refreshes the impacts
// of every remaining order against the changed route.
func (t *insertionTable) commit(oid int) error {
	if oid < 0 {
		// every pending order lost its last feasible route
		return unserviceable(t.pending[0])
	}
	imp, ok := t.best(oid)
	if !ok {
		return unserviceable(oid)
	}
	did := imp.Insertion.DriverID
	t.routes[did] = imp.Route
	delete(t.impacts, oid)
	delete(t.orders, oid)
	i, _ := slices.BinarySearch(t.pending, oid)
	t.pending = slices.Delete(t.pending, i, i+1)
	for _, other := range t.pending {
		if err := t.refresh(other, did); err != nil {
			return err
		}
		if len(t.impacts[other]) == 0 {
			return unserviceable(other)
		}
	}
	return nil
}

func unserviceable(oid int) error {
	return fmt.Errorf("%w: order %d has no feasible insertion on any route", ErrUnserviceableOrder, oid)
}

// topK keeps the k cheapest impacts seen so far, sorted ascending by cost
// delta and then driver id, so the worst kept entry is always the last one.
type topK struct {
	k     int
	items []OrderInsertionImpact
}

func newTopK(k int) *topK {
	return &topK{k: k, items: make([]OrderInsertionImpact, 0, k)}
}

func (t *topK) len() int                   { return len(t.items) }
func (t *topK) best() OrderInsertionImpact { return t.items[0] }
func (t *topK) worst() OrderInsertionImpact {
	return t.items[len(t.items)-1]
}

func impactLess(a, b OrderInsertionImpact) bool {
	if a.CostDelta != b.CostDelta {
		return a.CostDelta < b.CostDelta
	}
	return a.Insertion.DriverID < b.Insertion.DriverID
}

// offer adds imp when there is room or when it beats the current worst entry,
// which is then evicted.
func (t *topK) offer(imp OrderInsertionImpact) {
	if len(t.items) == t.k {
		if !impactLess(imp, t.worst()) {
			return
		}
		t.items = t.items[:len(t.items)-1]
	}
	i := len(t.items)
	for i > 0 && impactLess(imp, t.items[i-1]) {
		i--
	}
	t.items = slices.Insert(t.items, i, imp)
}

// regret sums how much worse each kept option is than the best one.
func (t *topK) regret() float64 {
	if len(t.items) == 0 {
		return 0
	}
	base := t.items[0].CostDelta
	var sum float64
	for _, imp := range t.items {
		sum += imp.CostDelta - base
	}
	return sum
}
