package opt

import (
	"fmt"
	"maps"
	"math"
	"slices"
)

// Route is the ordered task sequence of one driver together with the schedule
// derived from it. Every mutation re-derives the schedule and the cost before
// returning; a failed mutation leaves the route untouched.
type Route struct {
	driver      Driver
	maxLateness float64
	tasks       []Task

	cumDistance []float64
	cumTravel   []float64
	completion  []float64
	loads       []int
	pickupIdx   map[int]int
	deliveryIdx map[int]int
	orderIDs    []int
	late        map[int]float64
	totalDelay  float64
	distance    float64
	travelTime  float64
	cost        float64
}

// NewRoute returns an empty route for d. Late deliveries are penalized, never rejected.
func NewRoute(d Driver) *Route {
	r := &Route{driver: d, maxLateness: math.Inf(1)}
	// an empty task list cannot fail
	_ = r.registerTasks()
	_ = r.schedule()
	return r
}

func (r *Route) DriverID() int  { return r.driver.ID }
func (r *Route) Driver() Driver { return r.driver }
func (r *Route) Len() int       { return len(r.tasks) }
func (r *Route) Cost() float64  { return r.cost }

// Tasks returns a copy of the task sequence.
func (r *Route) Tasks() []Task { return slices.Clone(r.tasks) }

// OrderIDs returns the served orders in pickup order.
func (r *Route) OrderIDs() []int { return slices.Clone(r.orderIDs) }

func (r *Route) HasOrder(orderID int) bool {
	_, ok := r.pickupIdx[orderID]
	return ok
}

func (r *Route) PickupIndex(orderID int) (int, bool) {
	i, ok := r.pickupIdx[orderID]
	return i, ok
}

func (r *Route) DeliveryIndex(orderID int) (int, bool) {
	i, ok := r.deliveryIdx[orderID]
	return i, ok
}

func (r *Route) CompletionTimes() []float64     { return slices.Clone(r.completion) }
func (r *Route) CumulativeDistances() []float64 { return slices.Clone(r.cumDistance) }
func (r *Route) CumulativeTravelTimes() []float64 {
	return slices.Clone(r.cumTravel)
}
func (r *Route) Loads() []int { return slices.Clone(r.loads) }

func (r *Route) Distance() float64   { return r.distance }
func (r *Route) TravelTime() float64 { return r.travelTime }
func (r *Route) TotalDelay() float64 { return r.totalDelay }

// LateDeliveries maps each late order to its delay in seconds.
func (r *Route) LateDeliveries() map[int]float64 { return maps.Clone(r.late) }
func (r *Route) NumLateDeliveries() int           { return len(r.late) }

// OrderTimes returns the pickup and delivery completion times of an order.
func (r *Route) OrderTimes(orderID int) (TaskTimes, bool) {
	p, ok := r.pickupIdx[orderID]
	if !ok {
		return TaskTimes{}, false
	}
	d := r.deliveryIdx[orderID]
	return TaskTimes{Pickup: r.completion[p], Delivery: r.completion[d]}, true
}

// Evaluate sets the route cost from cf.
func (r *Route) Evaluate(cf CostFunction) {
	r.cost = cf.RouteCost(r)
}

// Insert places the order's pickup at ins.PickupIndex and then its delivery at
// ins.DeliveryIndex of the sequence that already holds the pickup.
func (r *Route) Insert(o Order, ins OrderInsertion, cf CostFunction) error {
	next, err := r.withInserted(o, ins, cf)
	if err != nil {
		return err
	}
	*r = *next
	return nil
}

// Remove deletes both tasks of the order.
func (r *Route) Remove(orderID int, cf CostFunction) error {
	next, err := r.withRemoved(orderID, cf)
	if err != nil {
		return err
	}
	*r = *next
	return nil
}

func (r *Route) withInserted(o Order, ins OrderInsertion, cf CostFunction) (*Route, error) {
	n := len(r.tasks)
	p, d := ins.PickupIndex, ins.DeliveryIndex
	if p < 0 || p > n || d <= p || d > n+1 {
		return nil, fmt.Errorf("%w: insertion (%d,%d) out of range for %d tasks", ErrInfeasibleRoute, p, d, n)
	}
	tasks := make([]Task, 0, n+2)
	tasks = append(tasks, r.tasks...)
	tasks = slices.Insert(tasks, p, o.Pickup)
	tasks = slices.Insert(tasks, d, o.Delivery)
	return r.derive(tasks, cf)
}

func (r *Route) withRemoved(orderID int, cf CostFunction) (*Route, error) {
	if !r.HasOrder(orderID) {
		return nil, fmt.Errorf("%w: order %d is not served by driver %d", ErrInfeasibleRoute, orderID, r.driver.ID)
	}
	tasks := make([]Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		if t.OrderID != orderID {
			tasks = append(tasks, t)
		}
	}
	return r.derive(tasks, cf)
}

// derive builds a fresh route over tasks with its schedule and cost.
func (r *Route) derive(tasks []Task, cf CostFunction) (*Route, error) {
	next := &Route{driver: r.driver, maxLateness: r.maxLateness, tasks: tasks}
	if err := next.registerTasks(); err != nil {
		return nil, err
	}
	if err := next.schedule(); err != nil {
		return nil, err
	}
	next.Evaluate(cf)
	return next, nil
}

func (r *Route) registerTasks() error {
	r.pickupIdx = make(map[int]int, len(r.tasks)/2)
	r.deliveryIdx = make(map[int]int, len(r.tasks)/2)
	r.orderIDs = make([]int, 0, len(r.tasks)/2)
	r.loads = make([]int, len(r.tasks))
	load := 0
	for i, t := range r.tasks {
		load += t.Quantity
		switch t.Type {
		case Pickup:
			if _, seen := r.pickupIdx[t.OrderID]; seen {
				return fmt.Errorf("%w: order %d is served multiple times", ErrInfeasibleRoute, t.OrderID)
			}
			r.pickupIdx[t.OrderID] = i
			r.orderIDs = append(r.orderIDs, t.OrderID)
			if load > r.driver.Capacity {
				return fmt.Errorf("%w: driver %d capacity %d exceeded, load after picking up order %d is %d",
					ErrInfeasibleRoute, r.driver.ID, r.driver.Capacity, t.OrderID, load)
			}
		case Delivery:
			if _, ok := r.pickupIdx[t.OrderID]; !ok {
				return fmt.Errorf("%w: order %d must be picked up before its delivery", ErrInfeasibleRoute, t.OrderID)
			}
			if _, seen := r.deliveryIdx[t.OrderID]; seen {
				return fmt.Errorf("%w: order %d is served multiple times", ErrInfeasibleRoute, t.OrderID)
			}
			r.deliveryIdx[t.OrderID] = i
		}
		r.loads[i] = load
	}
	for _, id := range r.orderIDs {
		if _, ok := r.deliveryIdx[id]; !ok {
			return fmt.Errorf("%w: order %d is picked up but never delivered", ErrInfeasibleRoute, id)
		}
	}
	return nil
}

func (r *Route) schedule() error {
	n := len(r.tasks)
	r.cumDistance = make([]float64, n)
	r.cumTravel = make([]float64, n)
	r.completion = make([]float64, n)
	r.late = map[int]float64{}
	r.totalDelay = 0

	prev := r.driver.Start
	prevDone := r.driver.Shift.Start
	var dist, travel float64
	for i, t := range r.tasks {
		leg := DistanceKm(prev, t.Location)
		legTime := TravelTimeSeconds(leg, AverageSpeedKph)
		dist += leg
		travel += legTime
		r.cumDistance[i] = dist
		r.cumTravel[i] = travel

		start := math.Max(prevDone+legTime, t.Window.Start)
		done := start + ServiceTimeSeconds
		r.completion[i] = done
		if t.Type == Delivery && done > t.Window.End {
			delay := done - t.Window.End
			if delay > r.maxLateness {
				return fmt.Errorf("%w: order %d would be delivered %.0fs late", ErrInfeasibleRoute, t.OrderID, delay)
			}
			r.late[t.OrderID] = delay
			r.totalDelay += delay
		}
		prev = t.Location
		prevDone = done
	}
	if n > 0 && r.driver.End != nil {
		leg := DistanceKm(prev, *r.driver.End)
		dist += leg
		travel += TravelTimeSeconds(leg, AverageSpeedKph)
	}
	r.distance = dist
	r.travelTime = travel
	return nil
}

// Clone returns a deep copy sharing no mutable state with r.
func (r *Route) Clone() *Route {
	c := *r
	c.tasks = slices.Clone(r.tasks)
	c.cumDistance = slices.Clone(r.cumDistance)
	c.cumTravel = slices.Clone(r.cumTravel)
	c.completion = slices.Clone(r.completion)
	c.loads = slices.Clone(r.loads)
	c.pickupIdx = maps.Clone(r.pickupIdx)
	c.deliveryIdx = maps.Clone(r.deliveryIdx)
	c.orderIDs = slices.Clone(r.orderIDs)
	c.late = maps.Clone(r.late)
	if r.driver.End != nil {
		end := *r.driver.End
		c.driver.End = &end
	}
	return &c
}
