package opt

import (
	"encoding/json"
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"
)

// Config holds every tunable of the search.
type Config struct {
	CoolingRate              float64                `yaml:"cooling_rate" json:"coolingRate"`
	ConstructionHeuristic    InsertionHeuristicType `yaml:"construction_heuristic" json:"constructionHeuristic"`
	NumIterations            int                    `yaml:"num_iterations" json:"numIterations"`
	NumOrdersToRemove        int                    `yaml:"num_orders_to_remove" json:"numOrdersToRemove"`
	RandomizationCoefficient float64                `yaml:"randomization_coefficient" json:"randomizationCoefficient"`
	ReactionFactor           float64                `yaml:"reaction_factor" json:"reactionFactor"`
	RegretHorizon            int                    `yaml:"regret_horizon" json:"regretHorizon"`
	SegmentSize              int                    `yaml:"segment_size" json:"segmentSize"`
	// HardTimeWindows rejects late deliveries instead of penalizing them.
	HardTimeWindows bool              `yaml:"hard_time_windows" json:"hardTimeWindows"`
	Similarity      OrderSimilarity   `yaml:"similarity" json:"similarity"`
	Rewards         Rewards           `yaml:"rewards" json:"rewards"`
	Cost            RouteCostFunction `yaml:"cost" json:"cost"`
}

func DefaultConfig() Config {
	return Config{
		CoolingRate:              0.99,
		ConstructionHeuristic:    RegretInsertion,
		NumIterations:            1000,
		NumOrdersToRemove:        10,
		RandomizationCoefficient: 3,
		ReactionFactor:           0.1,
		RegretHorizon:            4,
		SegmentSize:              100,
		Similarity: OrderSimilarity{
			TimeCoefficient:     3,
			DistanceCoefficient: 9,
			LoadCoefficient:     2,
			TimeScale:           ScalingFunction{Min: 0, Max: 2000},
			DistanceScale:       ScalingFunction{Min: 0, Max: 10},
			LoadScale:           ScalingFunction{Min: 0, Max: 20},
		},
		Rewards: Rewards{NewBest: 33, Improved: 13, Accepted: 9},
		Cost: RouteCostFunction{
			DistanceWeight:   1,
			TravelTimeWeight: 0,
			LateCountWeight:  1e6,
			TotalDelayWeight: 1e3,
		},
	}
}

func (c Config) Validate() error {
	switch {
	case c.CoolingRate <= 0 || c.CoolingRate > 1:
		return fmt.Errorf("%w: cooling rate must be in (0,1], got %v", ErrInvalidInput, c.CoolingRate)
	case c.NumIterations < 1:
		return fmt.Errorf("%w: num iterations must be >= 1, got %d", ErrInvalidInput, c.NumIterations)
	case c.NumOrdersToRemove < 1:
		return fmt.Errorf("%w: num orders to remove must be >= 1, got %d", ErrInvalidInput, c.NumOrdersToRemove)
	case c.RandomizationCoefficient <= 0:
		return fmt.Errorf("%w: randomization coefficient must be > 0, got %v", ErrInvalidInput, c.RandomizationCoefficient)
	case c.ReactionFactor < 0 || c.ReactionFactor > 1:
		return fmt.Errorf("%w: reaction factor must be in [0,1], got %v", ErrInvalidInput, c.ReactionFactor)
	case c.RegretHorizon < 2:
		return fmt.Errorf("%w: regret horizon must be >= 2, got %d", ErrInvalidInput, c.RegretHorizon)
	case c.SegmentSize < 1:
		return fmt.Errorf("%w: segment size must be >= 1, got %d", ErrInvalidInput, c.SegmentSize)
	}
	if c.ConstructionHeuristic != GreedyInsertion && c.ConstructionHeuristic != RegretInsertion {
		return fmt.Errorf("%w: unknown construction heuristic %d", ErrInvalidInput, int(c.ConstructionHeuristic))
	}
	for name, v := range map[string]float64{
		"distance weight":      c.Cost.DistanceWeight,
		"travel time weight":   c.Cost.TravelTimeWeight,
		"late count weight":    c.Cost.LateCountWeight,
		"total delay weight":   c.Cost.TotalDelayWeight,
		"new best reward":      c.Rewards.NewBest,
		"improved reward":      c.Rewards.Improved,
		"accepted reward":      c.Rewards.Accepted,
		"time coefficient":     c.Similarity.TimeCoefficient,
		"distance coefficient": c.Similarity.DistanceCoefficient,
		"load coefficient":     c.Similarity.LoadCoefficient,
	} {
		if v < 0 {
			return fmt.Errorf("%w: %s must be >= 0, got %v", ErrInvalidInput, name, v)
		}
	}
	return nil
}

// LoadConfig reads a YAML file over the defaults. Keys absent from the file
// keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read optimizer config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: parse optimizer config %s: %v", ErrInvalidInput, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("optimizer config %s: %w", path, err)
	}
	return cfg, nil
}

// InstanceOptions returns the instance options implied by the configuration.
func (c Config) InstanceOptions() []InstanceOption {
	if c.HardTimeWindows {
		return []InstanceOption{WithHardTimeWindows()}
	}
	return nil
}

// Overlay applies overrides keyed by the JSON field names of Config and
// validates the result. Nested objects merge field by field.
func (c Config) Overlay(overrides map[string]any) (Config, error) {
	if len(overrides) == 0 {
		return c, nil
	}
	data, err := json.Marshal(overrides)
	if err != nil {
		return c, fmt.Errorf("%w: encode config overrides: %v", ErrInvalidInput, err)
	}
	out := c
	if err := json.Unmarshal(data, &out); err != nil {
		return c, fmt.Errorf("%w: config overrides: %v", ErrInvalidInput, err)
	}
	if err := out.Validate(); err != nil {
		return c, err
	}
	return out, nil
}
