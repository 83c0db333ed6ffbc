// Package opt implements the pickup-and-delivery route optimizer: route
// scheduling, insertion and removal heuristics, adaptive heuristic selection
// and the simulated-annealing search that ties them together.
package opt

import (
	"fmt"
	"math"
	"slices"
)

type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// TimeWindow bounds are seconds from the start of the planning horizon.
type TimeWindow struct {
	Start float64
	End   float64
}

// Unbounded returns a window opening at start that never closes.
func Unbounded(start float64) TimeWindow { return TimeWindow{Start: start, End: math.Inf(1)} }

type TaskType int

const (
	Pickup TaskType = iota
	Delivery
)

func (t TaskType) String() string {
	switch t {
	case Pickup:
		return "pickup"
	case Delivery:
		return "delivery"
	}
	return fmt.Sprintf("TaskType(%d)", int(t))
}

// Task is one leg of an order. Quantity is positive for the pickup and the
// matching negative amount for the delivery.
type Task struct {
	OrderID  int
	Type     TaskType
	Location Location
	Quantity int
	Window   TimeWindow
}

// TaskKey identifies a task: two tasks are the same when order and type match.
type TaskKey struct {
	OrderID int
	Type    TaskType
}

func (t Task) Key() TaskKey { return TaskKey{OrderID: t.OrderID, Type: t.Type} }

type Order struct {
	ID       int
	Pickup   Task
	Delivery Task
}

// NewOrder builds an order whose pickup loads items and whose delivery unloads them.
func NewOrder(id int, pickup, delivery Location, items int, pickupWindow, deliveryWindow TimeWindow) Order {
	o := Order{
		Pickup:   Task{Type: Pickup, Location: pickup, Quantity: items, Window: pickupWindow},
		Delivery: Task{Type: Delivery, Location: delivery, Quantity: -items, Window: deliveryWindow},
	}
	o.SetID(id)
	return o
}

// SetID sets the order id on the order and both of its tasks.
func (o *Order) SetID(id int) {
	o.ID = id
	o.Pickup.OrderID = id
	o.Delivery.OrderID = id
}

// Items is the number of items carried between pickup and delivery.
func (o Order) Items() int { return o.Pickup.Quantity }

type Driver struct {
	ID       int
	Capacity int
	Start    Location
	End      *Location // optional; the route ends at the last task when nil
	Shift    TimeWindow
}

// Instance is the read-only input of one planning run.
type Instance struct {
	drivers     []Driver
	orders      []Order
	driverIndex map[int]int
	orderIndex  map[int]int
	maxLateness float64
}

type InstanceOption func(*Instance)

// WithHardTimeWindows makes any late delivery infeasible instead of penalized.
func WithHardTimeWindows() InstanceOption {
	return func(in *Instance) { in.maxLateness = 0 }
}

// NewInstance validates drivers and orders and returns the instance built from them.
func NewInstance(drivers []Driver, orders []Order, opts ...InstanceOption) (*Instance, error) {
	in := &Instance{
		drivers:     slices.Clone(drivers),
		orders:      slices.Clone(orders),
		driverIndex: make(map[int]int, len(drivers)),
		orderIndex:  make(map[int]int, len(orders)),
		maxLateness: math.Inf(1),
	}
	for _, apply := range opts {
		apply(in)
	}
	if len(drivers) == 0 && len(orders) > 0 {
		return nil, fmt.Errorf("%w: %d orders but no drivers", ErrInvalidInput, len(orders))
	}
	for i, d := range in.drivers {
		if _, dup := in.driverIndex[d.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate driver id %d", ErrInvalidInput, d.ID)
		}
		if d.Capacity <= 0 {
			return nil, fmt.Errorf("%w: driver %d capacity must be positive, got %d", ErrInvalidInput, d.ID, d.Capacity)
		}
		if d.Shift.End < d.Shift.Start {
			return nil, fmt.Errorf("%w: driver %d shift ends before it starts", ErrInvalidInput, d.ID)
		}
		in.driverIndex[d.ID] = i
	}
	for i, o := range in.orders {
		if _, dup := in.orderIndex[o.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate order id %d", ErrInvalidInput, o.ID)
		}
		if err := validateOrder(o); err != nil {
			return nil, err
		}
		in.orderIndex[o.ID] = i
	}
	return in, nil
}

func validateOrder(o Order) error {
	switch {
	case o.Pickup.OrderID != o.ID || o.Delivery.OrderID != o.ID:
		return fmt.Errorf("%w: order %d tasks reference another order", ErrInvalidInput, o.ID)
	case o.Pickup.Type != Pickup || o.Delivery.Type != Delivery:
		return fmt.Errorf("%w: order %d task types are swapped", ErrInvalidInput, o.ID)
	case o.Pickup.Quantity < 0:
		return fmt.Errorf("%w: order %d has negative item count %d", ErrInvalidInput, o.ID, o.Pickup.Quantity)
	case o.Pickup.Quantity != -o.Delivery.Quantity:
		return fmt.Errorf("%w: order %d delivers %d items but picks up %d", ErrInvalidInput, o.ID, -o.Delivery.Quantity, o.Pickup.Quantity)
	case o.Pickup.Window.End < o.Pickup.Window.Start || o.Delivery.Window.End < o.Delivery.Window.Start:
		return fmt.Errorf("%w: order %d has a time window ending before it starts", ErrInvalidInput, o.ID)
	}
	return nil
}

func (in *Instance) Drivers() []Driver { return slices.Clone(in.drivers) }
func (in *Instance) Orders() []Order   { return slices.Clone(in.orders) }
func (in *Instance) NumOrders() int    { return len(in.orders) }

func (in *Instance) Driver(id int) (Driver, bool) {
	i, ok := in.driverIndex[id]
	if !ok {
		return Driver{}, false
	}
	return in.drivers[i], true
}

func (in *Instance) Order(id int) (Order, bool) {
	i, ok := in.orderIndex[id]
	if !ok {
		return Order{}, false
	}
	return in.orders[i], true
}

// DriverIDs returns the driver ids in ascending order.
func (in *Instance) DriverIDs() []int {
	ids := make([]int, 0, len(in.drivers))
	for _, d := range in.drivers {
		ids = append(ids, d.ID)
	}
	slices.Sort(ids)
	return ids
}

// OrderIDs returns the order ids in ascending order.
func (in *Instance) OrderIDs() []int {
	ids := make([]int, 0, len(in.orders))
	for _, o := range in.orders {
		ids = append(ids, o.ID)
	}
	slices.Sort(ids)
	return ids
}

// NewRoute returns an empty route for d honoring the instance's lateness policy.
func (in *Instance) NewRoute(d Driver) *Route {
	r := NewRoute(d)
	r.maxLateness = in.maxLateness
	return r
}
