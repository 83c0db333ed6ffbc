package opt

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

// Metrics summarizes one optimizer run.
type Metrics struct {
	RemovalSelects        [numRemovalHeuristics]int       `json:"removalSelects"`   // random, greedy, shaw
	InsertSelects         [numInsertionHeuristics]int     `json:"insertSelects"`    // greedy, regret
	Iterations            int                             `json:"iterations"`
	NewBest               int                             `json:"newBest"`
	Improved              int                             `json:"improved"`
	Accepted              int                             `json:"accepted"`
	Rejected              int                             `json:"rejected"`
	Duplicates            int                             `json:"duplicates"`
	InitialCost           float64                         `json:"initialCost"`
	BestCost              float64                         `json:"bestCost"`
	FinalCost             float64                         `json:"finalCost"`
	InitialTemperature    float64                         `json:"initialTemperature"`
	FinalTemperature      float64                         `json:"finalTemperature"`
	FinalRemovalWeights   [numRemovalHeuristics]float64   `json:"finalRemovalWeights"`
	FinalInsertionWeights [numInsertionHeuristics]float64 `json:"finalInsertionWeights"`
	Snapshots             []WeightSnapshot                `json:"snapshots,omitempty"`
	Duration              time.Duration                   `json:"duration"`
}

// WeightSnapshot captures the heuristic weights right after a segment boundary.
type WeightSnapshot struct {
	Iteration int                             `json:"iteration"`
	Removal   [numRemovalHeuristics]float64   `json:"removal"`
	Insertion [numInsertionHeuristics]float64 `json:"insertion"`
}

// IterationEvent describes one finished iteration.
type IterationEvent struct {
	Iteration     int                    `json:"iteration"`
	Removal       RemovalHeuristicType   `json:"-"`
	Insertion     InsertionHeuristicType `json:"-"`
	Result        LocalSearchResult      `json:"-"`
	CandidateCost float64                `json:"candidateCost"`
	CurrentCost   float64                `json:"currentCost"`
	BestCost      float64                `json:"bestCost"`
	Temperature   float64                `json:"temperature"`
}

// Observer is notified synchronously from the search loop. Implementations
// must not block.
type Observer interface {
	OnIteration(IterationEvent)
	OnSegment(WeightSnapshot)
}

type Option func(*SimulatedAnnealing)

func WithLogger(l logrus.FieldLogger) Option {
	return func(sa *SimulatedAnnealing) {
		if l != nil {
			sa.log = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(sa *SimulatedAnnealing) { sa.observer = o }
}

// SimulatedAnnealing drives the adaptive large neighbourhood search.
type SimulatedAnnealing struct {
	inst     *Instance
	cfg      Config
	rng      *rand.Rand
	log      logrus.FieldLogger
	observer Observer

	construction *InsertionHeuristic
	insertions   [numInsertionHeuristics]*InsertionHeuristic
	removals     [numRemovalHeuristics]*RemovalHeuristic
	manager      *HeuristicManager
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.WarnLevel)
	return l
}

// New validates cfg and prepares every heuristic. All randomness is drawn from rng.
func New(inst *Instance, cfg Config, rng *rand.Rand, opts ...Option) (*SimulatedAnnealing, error) {
	if inst == nil {
		return nil, fmt.Errorf("%w: nil instance", ErrInvalidInput)
	}
	if rng == nil {
		return nil, fmt.Errorf("%w: nil random source", ErrInvalidInput)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sa := &SimulatedAnnealing{inst: inst, cfg: cfg, rng: rng, log: quietLogger()}
	for _, apply := range opts {
		apply(sa)
	}
	var err error
	if sa.construction, err = NewConstructionHeuristic(cfg.ConstructionHeuristic, cfg.Cost, cfg.RegretHorizon); err != nil {
		return nil, err
	}
	for i, kind := range InsertionHeuristicTypes {
		if sa.insertions[i], err = NewInsertionHeuristic(kind, cfg.Cost, cfg.RegretHorizon); err != nil {
			return nil, err
		}
	}
	for i, kind := range RemovalHeuristicTypes {
		if sa.removals[i], err = NewRemovalHeuristic(kind, inst, cfg, rng); err != nil {
			return nil, err
		}
	}
	sa.manager = NewHeuristicManager(rng, cfg.ReactionFactor, cfg.Rewards)
	return sa, nil
}

// Run constructs an initial solution and improves it for the configured
// number of iterations. When ctx is cancelled mid-search the best solution
// found so far is returned together with ctx.Err().
func (sa *SimulatedAnnealing) Run(ctx context.Context) (*Solution, Metrics, error) {
	started := time.Now()
	var m Metrics

	initial, err := sa.construction.Run(NewPartialSolution(sa.inst))
	if err != nil {
		return nil, m, fmt.Errorf("%w: construction: %w", ErrNoSolution, err)
	}
	if err := initial.Validate(sa.inst); err != nil {
		return nil, m, fmt.Errorf("construction: %w", err)
	}
	sa.log.Infof("initial solution with cost %.2f", initial.Cost())

	scheme := NewAnnealingScheme(initial.Cost(), sa.cfg.CoolingRate)
	m.InitialCost = initial.Cost()
	m.InitialTemperature = scheme.InitialTemperature()

	current, best := initial, initial
	seen := map[string]struct{}{initial.Fingerprint(): {}}

	finish := func() {
		m.BestCost = best.Cost()
		m.FinalCost = current.Cost()
		m.FinalTemperature = scheme.Temperature()
		m.FinalRemovalWeights = sa.manager.RemovalWeights()
		m.FinalInsertionWeights = sa.manager.InsertionWeights()
		m.Duration = time.Since(started)
	}

	for iter := 1; iter < sa.cfg.NumIterations; iter++ {
		if err := ctx.Err(); err != nil {
			finish()
			return best, m, err
		}
		if iter%sa.cfg.SegmentSize == 0 {
			sa.manager.ReinforceWeights()
			sa.manager.ClearStatistics()
			snap := WeightSnapshot{Iteration: iter, Removal: sa.manager.RemovalWeights(), Insertion: sa.manager.InsertionWeights()}
			m.Snapshots = append(m.Snapshots, snap)
			if sa.observer != nil {
				sa.observer.OnSegment(snap)
			}
		}
		sa.log.Debugf("running iteration %d", iter)

		ins := sa.manager.SelectInsertionHeuristic()
		rem := sa.manager.SelectRemovalHeuristic()
		m.InsertSelects[ins]++
		m.RemovalSelects[rem]++

		candidate, err := LocalSearch{Removal: sa.removals[rem], Insertion: sa.insertions[ins]}.Run(current)
		if err != nil {
			finish()
			return best, m, fmt.Errorf("iteration %d: %w", iter, err)
		}
		if err := candidate.Validate(sa.inst); err != nil {
			finish()
			return best, m, fmt.Errorf("iteration %d: %w", iter, err)
		}

		result, dup := sa.judge(seen, candidate, current, best, scheme)
		if dup {
			m.Duplicates++
		}

		switch result {
		case NewGlobalBest:
			best, current = candidate, candidate
			m.NewBest++
			sa.log.Infof("new global best solution: %.2f", best.Cost())
		case LocallyImproved:
			current = candidate
			m.Improved++
		case Accepted:
			current = candidate
			m.Accepted++
		default:
			m.Rejected++
		}
		sa.manager.UpdateStatistics(ins, rem, result)
		m.Iterations++

		if sa.observer != nil {
			sa.observer.OnIteration(IterationEvent{
				Iteration:     iter,
				Removal:       rem,
				Insertion:     ins,
				Result:        result,
				CandidateCost: candidate.Cost(),
				CurrentCost:   current.Cost(),
				BestCost:      best.Cost(),
				Temperature:   scheme.Temperature(),
			})
		}
		scheme.Cool()
	}
	finish()
	return best, m, nil
}

// judge classifies a candidate. A candidate equal to a solution accepted
// earlier in the run is rejected; only accepted candidates are remembered.
func (sa *SimulatedAnnealing) judge(seen map[string]struct{}, candidate, current, best *Solution, scheme *AnnealingScheme) (LocalSearchResult, bool) {
	fp := candidate.Fingerprint()
	if _, dup := seen[fp]; dup {
		return Rejected, true
	}
	result := sa.classify(candidate, current, best, scheme)
	if result != Rejected {
		seen[fp] = struct{}{}
	}
	return result, false
}

func (sa *SimulatedAnnealing) classify(candidate, current, best *Solution, scheme *AnnealingScheme) LocalSearchResult {
	switch {
	case candidate.Cost() < best.Cost():
		return NewGlobalBest
	case candidate.Cost() < current.Cost():
		return LocallyImproved
	case sa.rng.Float64() < scheme.AcceptanceProbability(candidate.Cost(), current.Cost()):
		return Accepted
	}
	return Rejected
}

// Solve runs the optimizer once. A zero seed picks a time-based seed.
func Solve(ctx context.Context, inst *Instance, cfg Config, seed int64, opts ...Option) (*Solution, Metrics, error) {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	sa, err := New(inst, cfg, rand.New(rand.NewSource(seed)), opts...)
	if err != nil {
		return nil, Metrics{}, err
	}
	return sa.Run(ctx)
}
