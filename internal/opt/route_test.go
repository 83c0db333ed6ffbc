package opt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceKm(t *testing.T) {
	a := loc(0, 0)
	b := loc(0, 1)
	assert.Equal(t, 0.0, DistanceKm(a, a))
	assert.InDelta(t, 2*earthRadiusKm*math.Sin(math.Pi/360), DistanceKm(a, b), 1e-6)
	assert.InDelta(t, DistanceKm(a, b), DistanceKm(b, a), 1e-12)
}

func TestTravelTimeSeconds(t *testing.T) {
	assert.InDelta(t, 3600.0, TravelTimeSeconds(20, 20), 1e-9)
	assert.True(t, math.IsInf(TravelTimeSeconds(1, 0), 1))
}

func TestRouteInsertSchedulesTasks(t *testing.T) {
	cf := distanceOnly()
	r := NewRoute(driver(1, 5, loc(0, 0)))
	o := order(7, loc(0, 0.01), loc(0, 0.02), 3)

	require.NoError(t, r.Insert(o, OrderInsertion{DriverID: 1, OrderID: 7, PickupIndex: 0, DeliveryIndex: 1}, cf))
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []int{3, 0}, r.Loads())
	assert.Equal(t, []int{7}, r.OrderIDs())

	p, ok := r.PickupIndex(7)
	require.True(t, ok)
	d, _ := r.DeliveryIndex(7)
	assert.Less(t, p, d)

	leg := DistanceKm(loc(0, 0), loc(0, 0.01))
	assert.InDelta(t, 2*leg, r.Distance(), 1e-9)
	assert.InDelta(t, r.Distance(), r.Cost(), 1e-9)

	times := r.CompletionTimes()
	assert.InDelta(t, TravelTimeSeconds(leg, AverageSpeedKph), times[0], 1e-9)
	assert.LessOrEqual(t, times[0], times[1])
}

func TestRouteCapacityExceeded(t *testing.T) {
	r := NewRoute(driver(1, 2, loc(0, 0)))
	err := r.Insert(order(1, loc(0, 0), loc(0, 0.01), 3), OrderInsertion{PickupIndex: 0, DeliveryIndex: 1}, distanceOnly())
	assert.ErrorIs(t, err, ErrInfeasibleRoute)
	assert.Equal(t, 0, r.Len())
}

func TestRouteRejectsBadPositions(t *testing.T) {
	cf := distanceOnly()
	r := NewRoute(driver(1, 5, loc(0, 0)))
	o := order(1, loc(0, 0), loc(0, 0.01), 1)
	for _, ins := range []OrderInsertion{
		{PickupIndex: 1, DeliveryIndex: 1},
		{PickupIndex: -1, DeliveryIndex: 1},
		{PickupIndex: 0, DeliveryIndex: 3},
	} {
		assert.ErrorIs(t, r.Insert(o, ins, cf), ErrInfeasibleRoute)
	}
	require.NoError(t, r.Insert(o, OrderInsertion{PickupIndex: 0, DeliveryIndex: 1}, cf))
	assert.ErrorIs(t, r.Insert(o, OrderInsertion{PickupIndex: 0, DeliveryIndex: 1}, cf), ErrInfeasibleRoute, "an order may be served once")
	assert.ErrorIs(t, r.Remove(99, cf), ErrInfeasibleRoute)
}

func TestRouteInsertRemoveInverse(t *testing.T) {
	cf := distanceOnly()
	r := NewRoute(driver(1, 5, loc(0, 0)))
	require.NoError(t, r.Insert(order(1, loc(0, 0.01), loc(0, 0.03), 2), OrderInsertion{PickupIndex: 0, DeliveryIndex: 1}, cf))
	before := r.Clone()

	require.NoError(t, r.Insert(order(2, loc(0.01, 0.01), loc(0.01, 0.02), 2), OrderInsertion{PickupIndex: 1, DeliveryIndex: 3}, cf))
	assert.Equal(t, 4, r.Len())
	require.NoError(t, r.Remove(2, cf))

	assert.Equal(t, before.Tasks(), r.Tasks())
	assert.InDelta(t, before.Cost(), r.Cost(), 1e-9)
	assert.Equal(t, before.CompletionTimes(), r.CompletionTimes())
}

func TestRouteCloneIsDeep(t *testing.T) {
	cf := distanceOnly()
	end := loc(0, 0)
	d := driver(1, 5, loc(0, 0))
	d.End = &end
	r := NewRoute(d)
	require.NoError(t, r.Insert(order(1, loc(0, 0.01), loc(0, 0.02), 1), OrderInsertion{PickupIndex: 0, DeliveryIndex: 1}, cf))

	c := r.Clone()
	require.NoError(t, c.Remove(1, cf))
	assert.Equal(t, 2, r.Len())
	assert.True(t, r.HasOrder(1))
	c.driver.End.Lat = 5
	assert.Equal(t, 0.0, r.Driver().End.Lat)
}

func TestRouteEndLocationAddsFinalLeg(t *testing.T) {
	cf := distanceOnly()
	end := loc(0, 0)
	d := driver(1, 5, loc(0, 0))
	open := NewRoute(d)
	d.End = &end
	closed := NewRoute(d)
	o := order(1, loc(0, 0.01), loc(0, 0.02), 1)
	ins := OrderInsertion{PickupIndex: 0, DeliveryIndex: 1}
	require.NoError(t, open.Insert(o, ins, cf))
	require.NoError(t, closed.Insert(o, ins, cf))
	assert.InDelta(t, open.Distance()+DistanceKm(loc(0, 0.02), end), closed.Distance(), 1e-9)
	assert.Equal(t, 0.0, NewRoute(d).Distance())
}

func TestRouteLateDeliveries(t *testing.T) {
	cf := distanceOnly()
	o := NewOrder(1, loc(0, 0), loc(0, 0.01), 1, TimeWindow{Start: 100, End: math.Inf(1)}, TimeWindow{Start: 0, End: 50})
	d := driver(1, 5, loc(0, 0))
	ins := OrderInsertion{PickupIndex: 0, DeliveryIndex: 1}

	soft := mustInstance(t, []Driver{d}, []Order{o})
	r := soft.NewRoute(d)
	require.NoError(t, r.Insert(o, ins, cf))
	times := r.CompletionTimes()
	assert.Equal(t, 100.0, times[0], "pickup waits for its window")
	want := 100 + TravelTimeSeconds(DistanceKm(loc(0, 0), loc(0, 0.01)), AverageSpeedKph) - 50
	assert.Equal(t, 1, r.NumLateDeliveries())
	assert.InDelta(t, want, r.TotalDelay(), 1e-9)
	assert.InDelta(t, r.Distance()+1e6+1e3*want, r.Cost(), 1e-6)

	hard := mustInstance(t, []Driver{d}, []Order{o}, WithHardTimeWindows())
	r = hard.NewRoute(d)
	assert.ErrorIs(t, r.Insert(o, ins, cf), ErrInfeasibleRoute)
}

func TestFindBestOrderInsertion(t *testing.T) {
	cf := distanceOnly()
	r := NewRoute(driver(1, 5, loc(0, 0)))
	require.NoError(t, r.Insert(order(1, loc(0, 0.01), loc(0, 0.04), 1), OrderInsertion{PickupIndex: 0, DeliveryIndex: 1}, cf))

	// on the way: the best placement nests inside the existing order
	imp, err := FindBestOrderInsertion(r, order(2, loc(0, 0.02), loc(0, 0.03), 1), cf)
	require.NoError(t, err)
	assert.Equal(t, 1, imp.Insertion.PickupIndex)
	assert.Equal(t, 2, imp.Insertion.DeliveryIndex)
	assert.InDelta(t, 0, imp.CostDelta, 1e-6)
	assert.Equal(t, 2, r.Len(), "the input route is not modified")

	_, err = FindBestOrderInsertion(r, order(3, loc(0, 0), loc(0, 1), 9), cf)
	assert.ErrorIs(t, err, ErrInfeasibleRoute)
}

func TestNewInstanceValidation(t *testing.T) {
	d := driver(1, 5, loc(0, 0))
	o := order(1, loc(0, 0), loc(0, 1), 1)

	_, err := NewInstance([]Driver{d, d}, []Order{o})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = NewInstance([]Driver{d}, []Order{o, o})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = NewInstance(nil, []Order{o})
	assert.ErrorIs(t, err, ErrInvalidInput)
	for _, capacity := range []int{0, -1} {
		_, err = NewInstance([]Driver{driver(2, capacity, loc(0, 0))}, []Order{o})
		assert.ErrorIs(t, err, ErrInvalidInput, "capacity %d", capacity)
	}

	bad := o
	bad.Delivery.Quantity = -2
	_, err = NewInstance([]Driver{d}, []Order{bad})
	assert.ErrorIs(t, err, ErrInvalidInput)

	inst, err := NewInstance([]Driver{driver(3, 1, loc(0, 0)), d}, []Order{order(9, loc(0, 0), loc(0, 1), 1), o})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, inst.DriverIDs())
	assert.Equal(t, []int{1, 9}, inst.OrderIDs())
}

func TestRegisterTasksRejectsBadSequences(t *testing.T) {
	a := order(1, loc(0, 0.01), loc(0, 0.02), 1)
	b := order(2, loc(0, 0.03), loc(0, 0.04), 1)
	cases := map[string]struct {
		tasks []Task
		want  string
	}{
		"delivery first":     {[]Task{a.Delivery, a.Pickup}, "order 1 must be picked up before its delivery"},
		"pickup twice":       {[]Task{a.Pickup, a.Pickup, a.Delivery}, "order 1 is served multiple times"},
		"delivery twice":     {[]Task{a.Pickup, a.Delivery, a.Delivery}, "order 1 is served multiple times"},
		"never delivered":    {[]Task{a.Pickup, b.Pickup, b.Delivery}, "order 1 is picked up but never delivered"},
		"other order before": {[]Task{a.Pickup, b.Delivery, a.Delivery, b.Pickup}, "order 2 must be picked up before its delivery"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewRoute(driver(1, 5, loc(0, 0))).derive(tc.tasks, distanceOnly())
			assert.ErrorIs(t, err, ErrInfeasibleRoute)
			assert.ErrorContains(t, err, tc.want)
		})
	}
}

func TestScheduleIsMonotone(t *testing.T) {
	a := NewOrder(1, loc(0, 0.01), loc(0, 0.02), 1, TimeWindow{Start: 600, End: math.Inf(1)}, Unbounded(0))
	b := NewOrder(2, loc(0, 0.03), loc(0, 0.01), 2, Unbounded(0), TimeWindow{Start: 5000, End: 9000})
	c := NewOrder(3, loc(0, 0.02), loc(0, 0.05), 1, TimeWindow{Start: 100, End: 200}, TimeWindow{Start: 0, End: 10})
	cases := map[string][]Task{
		"sequential":  {a.Pickup, a.Delivery, b.Pickup, b.Delivery, c.Pickup, c.Delivery},
		"interleaved": {a.Pickup, b.Pickup, c.Pickup, a.Delivery, b.Delivery, c.Delivery},
		"nested":      {c.Pickup, b.Pickup, a.Pickup, a.Delivery, b.Delivery, c.Delivery},
		"single":      {a.Pickup, a.Delivery},
	}
	for name, tasks := range cases {
		t.Run(name, func(t *testing.T) {
			d := driver(1, 5, loc(0, 0))
			d.Shift = Unbounded(50)
			r, err := NewRoute(d).derive(tasks, distanceOnly())
			require.NoError(t, err)
			times := r.CompletionTimes()
			prev := d.Shift.Start
			for i, task := range r.Tasks() {
				assert.GreaterOrEqual(t, times[i], prev, "task %d", i)
				assert.GreaterOrEqual(t, times[i], task.Window.Start, "task %d", i)
				prev = times[i]
			}
		})
	}
}
