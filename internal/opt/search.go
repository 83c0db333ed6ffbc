package opt

import (
	"errors"
	"fmt"
)

// OrderInsertion places an order on a driver's route. Indices are arc
// positions: 0 is before the first task, Len() appends.
type OrderInsertion struct {
	DriverID      int
	OrderID       int
	PickupIndex   int
	DeliveryIndex int
}

// OrderInsertionImpact is a feasible insertion with the route it produces.
type OrderInsertionImpact struct {
	Insertion OrderInsertion
	Route     *Route
	CostDelta float64
}

// OrderRemovalImpact is the cost change of taking an order off its route.
type OrderRemovalImpact struct {
	DriverID  int
	OrderID   int
	CostDelta float64
}

// FindBestOrderInsertion tries every pickup/delivery position pair on r and
// returns the cheapest feasible one. Ties keep the lowest pickup index, then
// the lowest delivery index. When nothing fits the error wraps ErrInfeasibleRoute.
func FindBestOrderInsertion(r *Route, o Order, cf CostFunction) (OrderInsertionImpact, error) {
	n := r.Len()
	var best OrderInsertionImpact
	found := false
	for p := 0; p <= n; p++ {
		for d := p + 1; d <= n+1; d++ {
			ins := OrderInsertion{DriverID: r.DriverID(), OrderID: o.ID, PickupIndex: p, DeliveryIndex: d}
			cand, err := r.withInserted(o, ins, cf)
			if err != nil {
				if errors.Is(err, ErrInfeasibleRoute) {
					continue
				}
				return OrderInsertionImpact{}, err
			}
			delta := cand.Cost() - r.Cost()
			if !found || delta < best.CostDelta {
				best = OrderInsertionImpact{Insertion: ins, Route: cand, CostDelta: delta}
				found = true
			}
		}
	}
	if !found {
		return OrderInsertionImpact{}, fmt.Errorf("%w: order %d cannot be served by driver %d", ErrInfeasibleRoute, o.ID, r.DriverID())
	}
	return best, nil
}

// removalImpact is the cost change of removing orderID from r.
func removalImpact(r *Route, orderID int, cf CostFunction) (OrderRemovalImpact, error) {
	next, err := r.withRemoved(orderID, cf)
	if err != nil {
		return OrderRemovalImpact{}, err
	}
	return OrderRemovalImpact{DriverID: r.DriverID(), OrderID: orderID, CostDelta: next.Cost() - r.Cost()}, nil
}
