package opt

import "math/rand"

// Rewards scores a heuristic by the outcomes it produced in the current segment.
type Rewards struct {
	NewBest  float64 `yaml:"new_global_best" json:"newGlobalBest"`
	Improved float64 `yaml:"locally_improved" json:"locallyImproved"`
	Accepted float64 `yaml:"accepted" json:"accepted"`
}

// HeuristicStatistics counts how a heuristic performed since the last segment boundary.
type HeuristicStatistics struct {
	Uses     int     `json:"uses"`
	NewBest  int     `json:"newBest"`
	Improved int     `json:"improved"`
	Accepted int     `json:"accepted"`
	Score    float64 `json:"score"`
}

// HeuristicManager selects insertion and removal heuristics by roulette wheel
// and reinforces their weights from observed performance.
type HeuristicManager struct {
	rng      *rand.Rand
	reaction float64
	rewards  Rewards

	insertionWeights [numInsertionHeuristics]float64
	removalWeights   [numRemovalHeuristics]float64
	insertionStats   [numInsertionHeuristics]HeuristicStatistics
	removalStats     [numRemovalHeuristics]HeuristicStatistics
}

func NewHeuristicManager(rng *rand.Rand, reactionFactor float64, rewards Rewards) *HeuristicManager {
	m := &HeuristicManager{rng: rng, reaction: reactionFactor, rewards: rewards}
	for i := range m.insertionWeights {
		m.insertionWeights[i] = 1 / float64(numInsertionHeuristics)
	}
	for i := range m.removalWeights {
		m.removalWeights[i] = 1 / float64(numRemovalHeuristics)
	}
	return m
}

func (m *HeuristicManager) SelectInsertionHeuristic() InsertionHeuristicType {
	return InsertionHeuristicTypes[selectOp(m.insertionWeights[:], m.rng)]
}

func (m *HeuristicManager) SelectRemovalHeuristic() RemovalHeuristicType {
	return RemovalHeuristicTypes[selectOp(m.removalWeights[:], m.rng)]
}

// UpdateStatistics records one use of the pair and its outcome.
func (m *HeuristicManager) UpdateStatistics(ins InsertionHeuristicType, rem RemovalHeuristicType, result LocalSearchResult) {
	m.record(&m.insertionStats[ins], result)
	m.record(&m.removalStats[rem], result)
}

func (m *HeuristicManager) record(st *HeuristicStatistics, result LocalSearchResult) {
	st.Uses++
	switch result {
	case NewGlobalBest:
		st.NewBest++
	case LocallyImproved:
		st.Improved++
	case Accepted:
		st.Accepted++
	}
	st.Score = m.rewards.NewBest*float64(st.NewBest) +
		m.rewards.Improved*float64(st.Improved) +
		m.rewards.Accepted*float64(st.Accepted)
}

// ReinforceWeights blends each weight with its average score over the segment.
// A heuristic unused during the segment only decays.
func (m *HeuristicManager) ReinforceWeights() {
	for i := range m.insertionWeights {
		m.insertionWeights[i] = m.reinforce(m.insertionWeights[i], m.insertionStats[i])
	}
	for i := range m.removalWeights {
		m.removalWeights[i] = m.reinforce(m.removalWeights[i], m.removalStats[i])
	}
}

func (m *HeuristicManager) reinforce(w float64, st HeuristicStatistics) float64 {
	w *= 1 - m.reaction
	if st.Uses > 0 {
		w += m.reaction * st.Score / float64(st.Uses)
	}
	return w
}

// ClearStatistics starts a new segment. Weights are kept.
func (m *HeuristicManager) ClearStatistics() {
	m.insertionStats = [numInsertionHeuristics]HeuristicStatistics{}
	m.removalStats = [numRemovalHeuristics]HeuristicStatistics{}
}

func (m *HeuristicManager) InsertionWeights() [numInsertionHeuristics]float64 { return m.insertionWeights }
func (m *HeuristicManager) RemovalWeights() [numRemovalHeuristics]float64     { return m.removalWeights }

func (m *HeuristicManager) InsertionStatistics(t InsertionHeuristicType) HeuristicStatistics {
	return m.insertionStats[t]
}

func (m *HeuristicManager) RemovalStatistics(t RemovalHeuristicType) HeuristicStatistics {
	return m.removalStats[t]
}

// selectOp spins a roulette wheel over weights and returns the first index
// whose cumulative share reaches the draw. Zero weights are never picked
// unless all weights are zero, in which case the pick is uniform.
func selectOp(weights []float64, rng *rand.Rand) int {
	total := 0.0
	last := len(weights) - 1
	for i, w := range weights {
		if w > 0 {
			total += w
			last = i
		}
	}
	u := rng.Float64()
	if total <= 0 {
		return int(u * float64(len(weights)))
	}
	cum := 0.0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		cum += w / total
		if u <= cum {
			return i
		}
	}
	// round-off left the draw above the final cumulative share
	return last
}
