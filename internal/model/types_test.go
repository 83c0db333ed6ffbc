package model

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdptw/internal/opt"
)

const solveBody = `{
  "tenantId": "t1",
  "planDate": "2024-05-01",
  "seed": 9,
  "drivers": [
    {"id": 1, "capacity": 4, "start": {"lat": 52.50, "lng": 13.40}, "shift": {"start": 0, "end": 36000}},
    {"id": 2, "capacity": 4, "start": {"lat": 52.52, "lng": 13.42}, "end": {"lat": 52.52, "lng": 13.42}}
  ],
  "orders": [
    {"id": 10, "pickup": {"lat": 52.50, "lng": 13.41}, "delivery": {"lat": 52.51, "lng": 13.41}, "items": 2,
     "pickupWindow": {"start": 300}, "deliveryWindow": {"start": 0, "end": 3600}},
    {"id": 11, "pickup": {"lat": 52.52, "lng": 13.43}, "delivery": {"lat": 52.53, "lng": 13.43}, "items": 1}
  ],
  "config": {"numIterations": 30}
}`

func TestSolveRequestInstance(t *testing.T) {
	var req SolveRequest
	require.NoError(t, json.Unmarshal([]byte(solveBody), &req))
	inst, err := req.Instance()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, inst.DriverIDs())
	assert.Equal(t, []int{10, 11}, inst.OrderIDs())

	d2, ok := inst.Driver(2)
	require.True(t, ok)
	require.NotNil(t, d2.End)
	assert.Equal(t, opt.Unbounded(0), d2.Shift)

	o, ok := inst.Order(10)
	require.True(t, ok)
	assert.Equal(t, 2, o.Items())
	assert.Equal(t, 300.0, o.Pickup.Window.Start)
	assert.Equal(t, 3600.0, o.Delivery.Window.End)

	req.Orders = append(req.Orders, req.Orders[0])
	_, err = req.Instance()
	assert.ErrorIs(t, err, opt.ErrInvalidInput)
}

func TestRunSetSolution(t *testing.T) {
	var req SolveRequest
	require.NoError(t, json.Unmarshal([]byte(solveBody), &req))
	inst, err := req.Instance()
	require.NoError(t, err)
	cfg, err := opt.DefaultConfig().Overlay(req.Config)
	require.NoError(t, err)

	s, m, err := opt.Solve(context.Background(), inst, cfg, req.Seed)
	require.NoError(t, err)

	run := Run{ID: "r1", Status: RunSucceeded}
	run.SetSolution(s)
	assert.True(t, run.Finished())
	assert.Len(t, run.Assignments, 2)
	require.NotNil(t, run.Summary)
	assert.Equal(t, 2, run.Summary.Orders)
	assert.Equal(t, s.Cost(), run.Cost)

	var stops int
	for _, rt := range run.Routes {
		stops += len(rt.Stops)
		assert.Equal(t, "pickup", rt.Stops[0].Type)
		assert.Equal(t, 0, rt.Stops[len(rt.Stops)-1].Load)
	}
	assert.Equal(t, 4, stops)

	pm := NewPlanMetrics(cfg.ConstructionHeuristic.String(), run.ID, cfg, m)
	assert.Equal(t, "regret", pm.Algo)
	assert.Equal(t, 29, pm.Iterations)
	assert.Len(t, pm.RemovalSelects, 3)
	assert.Len(t, pm.InsertSelects, 2)
	assert.Equal(t, cfg.Cost.LateCountWeight, pm.Objectives["lateCount"])
}
