package opt

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// PartialSolution holds a route per driver plus the orders still waiting for a route.
type PartialSolution struct {
	routes  map[int]*Route
	pending []Order
}

// NewPartialSolution returns empty routes for every driver with all orders pending.
func NewPartialSolution(inst *Instance) *PartialSolution {
	ps := &PartialSolution{routes: make(map[int]*Route, len(inst.drivers)), pending: inst.Orders()}
	for _, d := range inst.drivers {
		ps.routes[d.ID] = inst.NewRoute(d)
	}
	return ps
}

func (ps *PartialSolution) Route(driverID int) *Route { return ps.routes[driverID] }
func (ps *PartialSolution) DriverIDs() []int         { return sortedKeys(ps.routes) }
func (ps *PartialSolution) Pending() []Order         { return slices.Clone(ps.pending) }

// Validate checks that assigned and pending orders are disjoint and together
// cover the instance exactly.
func (ps *PartialSolution) Validate(inst *Instance) error {
	seen := make(map[int]string, inst.NumOrders())
	for _, did := range ps.DriverIDs() {
		for _, oid := range ps.routes[did].orderIDs {
			if where, dup := seen[oid]; dup {
				return fmt.Errorf("%w: order %d assigned to driver %d and %s", ErrInfeasibleSolution, oid, did, where)
			}
			seen[oid] = "driver " + strconv.Itoa(did)
		}
	}
	for _, o := range ps.pending {
		if where, dup := seen[o.ID]; dup {
			return fmt.Errorf("%w: pending order %d is also on %s", ErrInfeasibleSolution, o.ID, where)
		}
		seen[o.ID] = "the pending list"
	}
	return checkCoverage(inst, seen)
}

func (ps *PartialSolution) Clone() *PartialSolution {
	return &PartialSolution{routes: cloneRoutes(ps.routes), pending: slices.Clone(ps.pending)}
}

// Solution assigns every order to exactly one driver route.
type Solution struct {
	routes map[int]*Route
	cost   float64
}

func newSolution(routes map[int]*Route) *Solution {
	s := &Solution{routes: routes}
	// summed in driver order so equal solutions always agree bit for bit
	for _, id := range sortedKeys(routes) {
		s.cost += routes[id].Cost()
	}
	return s
}

// Cost is the sum of the route costs.
func (s *Solution) Cost() float64 { return s.cost }

// Route returns the route of a driver. Callers must not mutate it.
func (s *Solution) Route(driverID int) *Route { return s.routes[driverID] }
func (s *Solution) DriverIDs() []int         { return sortedKeys(s.routes) }

func (s *Solution) Clone() *Solution {
	return &Solution{routes: cloneRoutes(s.routes), cost: s.cost}
}

// Validate checks that every instance order appears in exactly one route.
func (s *Solution) Validate(inst *Instance) error {
	seen := make(map[int]string, inst.NumOrders())
	for _, did := range s.DriverIDs() {
		if _, ok := inst.Driver(did); !ok {
			return fmt.Errorf("%w: route for unknown driver %d", ErrInfeasibleSolution, did)
		}
		for _, oid := range s.routes[did].orderIDs {
			if where, dup := seen[oid]; dup {
				return fmt.Errorf("%w: order %d assigned to driver %d and %s", ErrInfeasibleSolution, oid, did, where)
			}
			seen[oid] = "driver " + strconv.Itoa(did)
		}
	}
	return checkCoverage(inst, seen)
}

func checkCoverage(inst *Instance, seen map[int]string) error {
	for _, o := range inst.orders {
		if _, ok := seen[o.ID]; !ok {
			return fmt.Errorf("%w: order %d is not assigned", ErrInfeasibleSolution, o.ID)
		}
	}
	if len(seen) != inst.NumOrders() {
		for _, id := range sortedKeys(seen) {
			if _, ok := inst.Order(id); !ok {
				return fmt.Errorf("%w: order %d is not part of the instance", ErrInfeasibleSolution, id)
			}
		}
	}
	return nil
}

// Assignment is the externally visible outcome for one order.
type Assignment struct {
	OrderID      int
	DriverID     int
	PickupTime   float64
	DeliveryTime float64
}

// Assignments lists every order with its driver and estimated completion
// times, ordered by driver and then by position on the route.
func (s *Solution) Assignments() []Assignment {
	var out []Assignment
	for _, did := range s.DriverIDs() {
		r := s.routes[did]
		for _, oid := range r.orderIDs {
			t, _ := r.OrderTimes(oid)
			out = append(out, Assignment{OrderID: oid, DriverID: did, PickupTime: t.Pickup, DeliveryTime: t.Delivery})
		}
	}
	return out
}

// Summary aggregates route metrics over the whole solution.
type Summary struct {
	Orders         int
	DriversUsed    int
	Distance       float64
	TravelTime     float64
	LateDeliveries int
	TotalDelay     float64
	Cost           float64
}

func (s *Solution) Summary() Summary {
	sum := Summary{Cost: s.cost}
	for _, did := range s.DriverIDs() {
		r := s.routes[did]
		if r.Len() == 0 {
			continue
		}
		sum.DriversUsed++
		sum.Orders += len(r.orderIDs)
		sum.Distance += r.Distance()
		sum.TravelTime += r.TravelTime()
		sum.LateDeliveries += r.NumLateDeliveries()
		sum.TotalDelay += r.TotalDelay()
	}
	return sum
}

// Fingerprint is a canonical encoding of the task sequences; two solutions
// with the same fingerprint visit the same tasks in the same order.
func (s *Solution) Fingerprint() string {
	var b strings.Builder
	for _, did := range s.DriverIDs() {
		r := s.routes[did]
		if r.Len() == 0 {
			continue
		}
		b.WriteString(strconv.Itoa(did))
		b.WriteByte(':')
		for i, t := range r.tasks {
			if i > 0 {
				b.WriteByte(',')
			}
			if t.Type == Pickup {
				b.WriteByte('+')
			} else {
				b.WriteByte('-')
			}
			b.WriteString(strconv.Itoa(t.OrderID))
		}
		b.WriteByte(';')
	}
	return b.String()
}

// orderOwners maps each assigned order to its driver.
func (s *Solution) orderOwners() map[int]int {
	owners := map[int]int{}
	for did, r := range s.routes {
		for _, oid := range r.orderIDs {
			owners[oid] = did
		}
	}
	return owners
}

// orderTimes collects pickup/delivery completion times of every assigned order.
func (s *Solution) orderTimes() map[int]TaskTimes {
	times := map[int]TaskTimes{}
	for _, r := range s.routes {
		for _, oid := range r.orderIDs {
			t, _ := r.OrderTimes(oid)
			times[oid] = t
		}
	}
	return times
}

func cloneRoutes(in map[int]*Route) map[int]*Route {
	out := make(map[int]*Route, len(in))
	for id, r := range in {
		out[id] = r.Clone()
	}
	return out
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

