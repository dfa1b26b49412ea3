package core

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// Priority is one weighted allocation criterion.
type Priority struct {
	ID          string  `json:"id" yaml:"id"`
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description" yaml:"description"`
	Weight      float64 `json:"weight" yaml:"weight"`
}

// presetFallbackWeight is assigned to criteria a preset does not mention.
const presetFallbackWeight = 0.2

var (
	// ErrWeightsExceedTotal is returned when weights add up to more than 100%.
	ErrWeightsExceedTotal = errors.New("total weight exceeds 100%")

	// ErrUnknownPreset is returned for an unknown preset name.
	ErrUnknownPreset = errors.New("unknown priority preset")
)

// DefaultPriorities returns the initial criteria.
func DefaultPriorities() []Priority {
	return []Priority{
		{ID: "1", Name: "Fulfillment", Description: "Complete requested tasks", Weight: 0.3},
		{ID: "2", Name: "Fairness", Description: "Balance workload", Weight: 0.3},
		{ID: "3", Name: "Priority", Description: "Follow priority levels", Weight: 0.2},
		{ID: "4", Name: "Efficiency", Description: "Minimize idle time", Weight: 0.1},
		{ID: "5", Name: "Skill Match", Description: "Match skills", Weight: 0.1},
	}
}

// Preset is a named set of weights keyed by priority ID.
type Preset struct {
	Name    string             `json:"name"`
	Weights map[string]float64 `json:"weights"`
}

// Presets returns the built-in weight profiles.
func Presets() []Preset {
	return []Preset{
		{Name: "Maximize Fulfillment", Weights: map[string]float64{"1": 0.4, "2": 0.2, "3": 0.2, "4": 0.1, "5": 0.1}},
		{Name: "Fair Distribution", Weights: map[string]float64{"1": 0.2, "2": 0.2, "3": 0.3, "4": 0.2, "5": 0.1}},
		{Name: "Minimize Workload", Weights: map[string]float64{"1": 0.1, "2": 0.2, "3": 0.3, "4": 0.2, "5": 0.2}},
	}
}

// ApplyPreset returns a copy of ps with the named preset's weights.
func ApplyPreset(ps []Priority, name string) ([]Priority, error) {
	for _, preset := range Presets() {
		if preset.Name != name {
			continue
		}
		out := slices.Clone(ps)
		for i := range out {
			w, ok := preset.Weights[out[i].ID]
			if !ok {
				w = presetFallbackWeight
			}
			out[i].Weight = w
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
}

// NormalizeWeights scales weights so they sum to 1, rounded to two decimals.
// Totals above 100% are rejected. When every weight is zero the first
// criterion receives the full weight.
func NormalizeWeights(ps []Priority) ([]Priority, error) {
	total := 0.0
	for _, p := range ps {
		if p.Weight < 0 {
			return nil, fmt.Errorf("weight for %q must be non-negative", p.Name)
		}
		total += p.Weight
	}
	if math.Round(total*100) > 100 {
		return nil, fmt.Errorf("%w: %.0f%%", ErrWeightsExceedTotal, total*100)
	}

	out := slices.Clone(ps)
	for i := range out {
		switch {
		case total > 0:
			out[i].Weight = round2(out[i].Weight / total)
		case i == 0:
			out[i].Weight = 1
		default:
			out[i].Weight = 0
		}
	}
	return out, nil
}

// Reorder moves the criterion at index from to index to.
func Reorder(ps []Priority, from, to int) ([]Priority, error) {
	if from < 0 || from >= len(ps) || to < 0 || to >= len(ps) {
		return nil, fmt.Errorf("%w: move %d to %d in %d priorities", ErrRowOutOfRange, from, to, len(ps))
	}
	out := slices.Clone(ps)
	moved := out[from]
	out = slices.Delete(out, from, from+1)
	out = slices.Insert(out, to, moved)
	return out, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
