package opt

// CostFunction scores a single route; a solution costs the sum of its routes.
type CostFunction interface {
	RouteCost(r *Route) float64
}

// RouteCostFunction is a weighted sum of route metrics. No normalization is
// applied, so weights must be chosen at compatible scales.
type RouteCostFunction struct {
	DistanceWeight   float64 `yaml:"distance" json:"distance"`
	TravelTimeWeight float64 `yaml:"travel_time" json:"travelTime"`
	LateCountWeight  float64 `yaml:"late_count" json:"lateCount"`
	TotalDelayWeight float64 `yaml:"total_delay" json:"totalDelay"`
}

func (f RouteCostFunction) RouteCost(r *Route) float64 {
	cost := f.DistanceWeight * r.Distance()
	if f.TravelTimeWeight != 0 {
		cost += f.TravelTimeWeight * r.TravelTime()
	}
	cost += f.LateCountWeight * float64(r.NumLateDeliveries())
	cost += f.TotalDelayWeight * r.TotalDelay()
	return cost
}
