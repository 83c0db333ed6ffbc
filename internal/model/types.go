package model

import (
	"time"

	"pdptw/internal/opt"
)

// Run statuses.
const (
	RunQueued    = "queued"
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p GeoPoint) Location() opt.Location { return opt.Location{Lat: p.Lat, Lng: p.Lng} }

// TimeWindow is expressed in seconds from the start of the plan day. A nil
// End leaves the window open.
type TimeWindow struct {
	Start float64  `json:"start"`
	End   *float64 `json:"end,omitempty"`
}

func (tw *TimeWindow) window() opt.TimeWindow {
	if tw == nil {
		return opt.Unbounded(0)
	}
	w := opt.Unbounded(tw.Start)
	if tw.End != nil {
		w.End = *tw.End
	}
	return w
}

type DriverIn struct {
	ID       int         `json:"id"`
	Capacity int         `json:"capacity"`
	Start    GeoPoint    `json:"start"`
	End      *GeoPoint   `json:"end,omitempty"`
	Shift    *TimeWindow `json:"shift,omitempty"`
}

type OrderIn struct {
	ID             int         `json:"id"`
	Pickup         GeoPoint    `json:"pickup"`
	Delivery       GeoPoint    `json:"delivery"`
	Items          int         `json:"items"`
	PickupWindow   *TimeWindow `json:"pickupWindow,omitempty"`
	DeliveryWindow *TimeWindow `json:"deliveryWindow,omitempty"`
}

// SolveRequest is the body of POST /v1/solve. Config holds overrides keyed
// by the JSON names of opt.Config.
type SolveRequest struct {
	TenantID string         `json:"tenantId"`
	PlanDate string         `json:"planDate"`
	Seed     int64          `json:"seed,omitempty"`
	Drivers  []DriverIn     `json:"drivers"`
	Orders   []OrderIn      `json:"orders"`
	Config   map[string]any `json:"config,omitempty"`
	Async    bool           `json:"async,omitempty"`
}

// Instance converts the request into an optimizer instance.
func (r SolveRequest) Instance(opts ...opt.InstanceOption) (*opt.Instance, error) {
	drivers := make([]opt.Driver, 0, len(r.Drivers))
	for _, d := range r.Drivers {
		drv := opt.Driver{ID: d.ID, Capacity: d.Capacity, Start: d.Start.Location(), Shift: d.Shift.window()}
		if d.End != nil {
			end := d.End.Location()
			drv.End = &end
		}
		drivers = append(drivers, drv)
	}
	orders := make([]opt.Order, 0, len(r.Orders))
	for _, o := range r.Orders {
		orders = append(orders, opt.NewOrder(o.ID, o.Pickup.Location(), o.Delivery.Location(), o.Items,
			o.PickupWindow.window(), o.DeliveryWindow.window()))
	}
	return opt.NewInstance(drivers, orders, opts...)
}

type Assignment struct {
	OrderID      int     `json:"orderId"`
	DriverID     int     `json:"driverId"`
	PickupTime   float64 `json:"pickupTime"`
	DeliveryTime float64 `json:"deliveryTime"`
}

type Stop struct {
	OrderID        int      `json:"orderId"`
	Type           string   `json:"type"`
	Location       GeoPoint `json:"location"`
	Load           int      `json:"load"`
	CompletionTime float64  `json:"completionTime"`
}

type Route struct {
	DriverID       int     `json:"driverId"`
	Stops          []Stop  `json:"stops"`
	Distance       float64 `json:"distanceKm"`
	TravelTime     float64 `json:"travelTimeSec"`
	LateDeliveries int     `json:"lateDeliveries"`
	TotalDelay     float64 `json:"totalDelaySec"`
	Cost           float64 `json:"cost"`
}

type Summary struct {
	Orders         int     `json:"orders"`
	DriversUsed    int     `json:"driversUsed"`
	Distance       float64 `json:"distanceKm"`
	TravelTime     float64 `json:"travelTimeSec"`
	LateDeliveries int     `json:"lateDeliveries"`
	TotalDelay     float64 `json:"totalDelaySec"`
	Cost           float64 `json:"cost"`
}

// Run is one optimizer job and, once finished, its outcome.
type Run struct {
	ID          string       `json:"runId"`
	TenantID    string       `json:"tenantId"`
	PlanDate    string       `json:"planDate"`
	Status      string       `json:"status"`
	Algo        string       `json:"algo"`
	Seed        int64        `json:"seed"`
	Cost        float64      `json:"cost,omitempty"`
	Summary     *Summary     `json:"summary,omitempty"`
	Assignments []Assignment `json:"assignments,omitempty"`
	Routes      []Route      `json:"routes,omitempty"`
	Metrics     *opt.Metrics `json:"metrics,omitempty"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	FinishedAt  *time.Time   `json:"finishedAt,omitempty"`
}

// SetSolution fills the outcome fields of the run from a solution.
func (r *Run) SetSolution(s *opt.Solution) {
	sum := s.Summary()
	r.Cost = s.Cost()
	r.Summary = &Summary{
		Orders:         sum.Orders,
		DriversUsed:    sum.DriversUsed,
		Distance:       sum.Distance,
		TravelTime:     sum.TravelTime,
		LateDeliveries: sum.LateDeliveries,
		TotalDelay:     sum.TotalDelay,
		Cost:           sum.Cost,
	}
	assignments := s.Assignments()
	r.Assignments = make([]Assignment, 0, len(assignments))
	for _, a := range assignments {
		r.Assignments = append(r.Assignments, Assignment(a))
	}
	r.Routes = nil
	for _, did := range s.DriverIDs() {
		rt := s.Route(did)
		if rt.Len() == 0 {
			continue
		}
		out := Route{
			DriverID:       did,
			Distance:       rt.Distance(),
			TravelTime:     rt.TravelTime(),
			LateDeliveries: rt.NumLateDeliveries(),
			TotalDelay:     rt.TotalDelay(),
			Cost:           rt.Cost(),
		}
		loads, times := rt.Loads(), rt.CompletionTimes()
		for i, t := range rt.Tasks() {
			out.Stops = append(out.Stops, Stop{
				OrderID:        t.OrderID,
				Type:           t.Type.String(),
				Location:       GeoPoint{Lat: t.Location.Lat, Lng: t.Location.Lng},
				Load:           loads[i],
				CompletionTime: times[i],
			})
		}
		r.Routes = append(r.Routes, out)
	}
}

// Finished reports whether the run reached a terminal status.
func (r Run) Finished() bool { return r.Status == RunSucceeded || r.Status == RunFailed }

// PlanMetrics is the persisted search summary of the latest run per
// tenant, plan date and construction heuristic.
type PlanMetrics struct {
	Algo                  string             `json:"algo"`
	RunID                 string             `json:"runId,omitempty"`
	Iterations            int                `json:"iterations"`
	NewBest               int                `json:"newBest"`
	Improved              int                `json:"improved"`
	Accepted              int                `json:"accepted"`
	Rejected              int                `json:"rejected"`
	InitialCost           float64            `json:"initialCost"`
	BestCost              float64            `json:"bestCost"`
	FinalCost             float64            `json:"finalCost"`
	InitialTemperature    float64            `json:"initTemp"`
	CoolingRate           float64            `json:"cooling"`
	RemovalSelects        []int              `json:"removalSelects"`
	InsertSelects         []int              `json:"insertSelects"`
	FinalRemovalWeights   []float64          `json:"finalRemovalWeights"`
	FinalInsertionWeights []float64          `json:"finalInsertionWeights"`
	Objectives            map[string]float64 `json:"objectives,omitempty"`
	Weights               []WeightSnapshot   `json:"weights,omitempty"`
}

type WeightSnapshot struct {
	Iteration int       `json:"iteration"`
	Removal   []float64 `json:"removal"`
	Insertion []float64 `json:"insertion"`
}

// NewPlanMetrics flattens run metrics for storage.
func NewPlanMetrics(algo, runID string, cfg opt.Config, m opt.Metrics) PlanMetrics {
	return PlanMetrics{
		Algo:                  algo,
		RunID:                 runID,
		Iterations:            m.Iterations,
		NewBest:               m.NewBest,
		Improved:              m.Improved,
		Accepted:              m.Accepted,
		Rejected:              m.Rejected,
		InitialCost:           m.InitialCost,
		BestCost:              m.BestCost,
		FinalCost:             m.FinalCost,
		InitialTemperature:    m.InitialTemperature,
		CoolingRate:           cfg.CoolingRate,
		RemovalSelects:        m.RemovalSelects[:],
		InsertSelects:         m.InsertSelects[:],
		FinalRemovalWeights:   m.FinalRemovalWeights[:],
		FinalInsertionWeights: m.FinalInsertionWeights[:],
		Objectives: map[string]float64{
			"distance":   cfg.Cost.DistanceWeight,
			"travelTime": cfg.Cost.TravelTimeWeight,
			"lateCount":  cfg.Cost.LateCountWeight,
			"totalDelay": cfg.Cost.TotalDelayWeight,
		},
	}
}

// NewWeightSnapshots converts the segment snapshots of a run.
func NewWeightSnapshots(snaps []opt.WeightSnapshot) []WeightSnapshot {
	out := make([]WeightSnapshot, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, WeightSnapshot{Iteration: s.Iteration, Removal: s.Removal[:], Insertion: s.Insertion[:]})
	}
	return out
}

type SubscriptionRequest struct {
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}

type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"-"`
}
