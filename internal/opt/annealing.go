package opt

import "math"

const (
	// A solution worse by startWorseFraction of the initial cost is accepted
	// with probability startAcceptProbability at the first iteration.
	startWorseFraction     = 0.05
	startAcceptProbability = 0.5
)

// AnnealingScheme is the temperature schedule of the search.
type AnnealingScheme struct {
	initial     float64
	temperature float64
	coolingRate float64
}

func NewAnnealingScheme(initialCost, coolingRate float64) *AnnealingScheme {
	t := startWorseFraction * initialCost / math.Log(1/startAcceptProbability)
	return &AnnealingScheme{initial: t, temperature: t, coolingRate: coolingRate}
}

func (a *AnnealingScheme) InitialTemperature() float64 { return a.initial }
func (a *AnnealingScheme) Temperature() float64        { return a.temperature }

// AcceptanceProbability is exp(-(candidate-current)/T) for a worse candidate
// and 1 otherwise.
func (a *AnnealingScheme) AcceptanceProbability(candidateCost, currentCost float64) float64 {
	if candidateCost <= currentCost {
		return 1
	}
	if a.temperature <= 0 {
		return 0
	}
	return math.Exp(-(candidateCost - currentCost) / a.temperature)
}

// Cool lowers the temperature by the cooling rate.
func (a *AnnealingScheme) Cool() { a.temperature *= a.coolingRate }

