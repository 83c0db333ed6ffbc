package opt

import "fmt"

// LocalSearchResult classifies the outcome of one destroy-and-repair step.
type LocalSearchResult int

const (
	Rejected LocalSearchResult = iota
	Accepted
	LocallyImproved
	NewGlobalBest
)

func (r LocalSearchResult) String() string {
	switch r {
	case Rejected:
		return "rejected"
	case Accepted:
		return "accepted"
	case LocallyImproved:
		return "locally_improved"
	case NewGlobalBest:
		return "new_global_best"
	}
	return fmt.Sprintf("LocalSearchResult(%d)", int(r))
}

// LocalSearch pairs one removal with one insertion heuristic.
type LocalSearch struct {
	Removal   *RemovalHeuristic
	Insertion *InsertionHeuristic
}

// Run destroys part of s and repairs it. s is left untouched.
func (ls LocalSearch) Run(s *Solution) (*Solution, error) {
	ps, err := ls.Removal.Run(s)
	if err != nil {
		return nil, fmt.Errorf("%s removal: %w", ls.Removal.Type(), err)
	}
	out, err := ls.Insertion.Run(ps)
	if err != nil {
		return nil, fmt.Errorf("%s insertion: %w", ls.Insertion.Type(), err)
	}
	return out, nil
}
