package opt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func loc(lat, lng float64) Location { return Location{Lat: lat, Lng: lng} }

func order(id int, from, to Location, items int) Order {
	return NewOrder(id, from, to, items, Unbounded(0), Unbounded(0))
}

func driver(id, capacity int, start Location) Driver {
	return Driver{ID: id, Capacity: capacity, Start: start, Shift: Unbounded(0)}
}

func distanceOnly() RouteCostFunction {
	return RouteCostFunction{DistanceWeight: 1, LateCountWeight: 1e6, TotalDelayWeight: 1e3}
}

func mustInstance(t *testing.T, drivers []Driver, orders []Order, opts ...InstanceOption) *Instance {
	t.Helper()
	inst, err := NewInstance(drivers, orders, opts...)
	require.NoError(t, err)
	return inst
}

// gridInstance spreads n orders over a small area served by three drivers.
func gridInstance(t *testing.T, n int) *Instance {
	t.Helper()
	drivers := []Driver{
		driver(1, 4, loc(52.50, 13.40)),
		driver(2, 4, loc(52.52, 13.42)),
		driver(3, 4, loc(52.48, 13.38)),
	}
	var orders []Order
	for i := 0; i < n; i++ {
		f := float64(i)
		from := loc(52.49+0.004*f, 13.39+0.003*float64(i%4))
		to := loc(52.51-0.002*f, 13.41+0.005*float64(i%3))
		orders = append(orders, order(100+i, from, to, 1+i%3))
	}
	return mustInstance(t, drivers, orders)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.NumIterations = 120
	cfg.NumOrdersToRemove = 3
	cfg.SegmentSize = 25
	cfg.Cost = distanceOnly()
	return cfg
}
