package opt

import "math"

// ScalingFunction maps a raw difference onto the unit range of [Min, Max].
type ScalingFunction struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

func (f ScalingFunction) Scale(v float64) float64 {
	r := f.Max - f.Min
	if r == 0 {
		return 0
	}
	return v / r
}

// TaskTimes are the completion times of an order's pickup and delivery.
type TaskTimes struct {
	Pickup   float64
	Delivery float64
}

// OrderSimilarity measures how related two orders are. Lower is more similar.
type OrderSimilarity struct {
	TimeCoefficient     float64         `yaml:"time_coefficient" json:"timeCoefficient"`
	DistanceCoefficient float64         `yaml:"distance_coefficient" json:"distanceCoefficient"`
	LoadCoefficient     float64         `yaml:"load_coefficient" json:"loadCoefficient"`
	TimeScale           ScalingFunction `yaml:"time_scale" json:"timeScale"`
	DistanceScale       ScalingFunction `yaml:"distance_scale" json:"distanceScale"`
	LoadScale           ScalingFunction `yaml:"load_scale" json:"loadScale"`
}

// Score combines the completion-time, location and load differences of a and b.
func (s OrderSimilarity) Score(a, b Order, at, bt TaskTimes) float64 {
	timeDiff := s.TimeScale.Scale(math.Abs(at.Pickup-bt.Pickup)) +
		s.TimeScale.Scale(math.Abs(at.Delivery-bt.Delivery))
	distDiff := s.DistanceScale.Scale(DistanceKm(a.Pickup.Location, b.Pickup.Location)) +
		s.DistanceScale.Scale(DistanceKm(a.Delivery.Location, b.Delivery.Location))
	loadDiff := s.LoadScale.Scale(math.Abs(float64(a.Items() - b.Items())))
	return s.TimeCoefficient*timeDiff + s.DistanceCoefficient*distDiff + s.LoadCoefficient*loadDiff
}
