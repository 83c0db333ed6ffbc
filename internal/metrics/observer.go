package metrics

import "pdptw/internal/opt"

// SearchObserver feeds per-iteration search outcomes into the solver collectors.
type SearchObserver struct{}

func (SearchObserver) OnIteration(e opt.IterationEvent) {
	SolveIterations.WithLabelValues(e.Result.String()).Inc()
	HeuristicSelections.WithLabelValues("removal", e.Removal.String()).Inc()
	HeuristicSelections.WithLabelValues("insertion", e.Insertion.String()).Inc()
}

func (SearchObserver) OnSegment(s opt.WeightSnapshot) {
	for i, w := range s.Removal {
		HeuristicWeight.WithLabelValues("removal", opt.RemovalHeuristicTypes[i].String()).Set(w)
	}
	for i, w := range s.Insertion {
		HeuristicWeight.WithLabelValues("insertion", opt.InsertionHeuristicTypes[i].String()).Set(w)
	}
}

// Observers combines several observers into one.
type Observers []opt.Observer

func (os Observers) OnIteration(e opt.IterationEvent) {
	for _, o := range os {
		o.OnIteration(e)
	}
}

func (os Observers) OnSegment(s opt.WeightSnapshot) {
	for _, o := range os {
		o.OnSegment(s)
	}
}
