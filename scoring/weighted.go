// Package scoring provides the weighted factor scoring shared by the factor aggregator,
// the citation consistency score and the forecast driver ranking.
package scoring

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// WeightTolerance is the floating error accepted when checking that weights sum to 1
const WeightTolerance = 1e-6

var (
	// ErrNegativeWeight is returned when a component has a weight below zero or above one
	ErrNegativeWeight = errors.New("weight out of range [0,1]")
	// ErrWeightSum is returned when the weights add up to more than 1
	ErrWeightSum = errors.New("weights sum above 1")
	// ErrNoWeight is returned when all weights are zero
	ErrNoWeight = errors.New("weights sum to zero")
)

// Component is one weighted value
type Component struct {
	Name   string
	Value  float64
	Weight float64
}

// ValidateWeights checks each weight is within [0,1] and the total does not exceed 1.
// It returns the total weight.
func ValidateWeights(components []Component) (float64, error) {
	total := 0.0
	for _, c := range components {
		if math.IsNaN(c.Weight) || c.Weight < 0 || c.Weight > 1 {
			return 0, fmt.Errorf("%s: %w (value: %v)", c.Name, ErrNegativeWeight, c.Weight)
		}
		total += c.Weight
	}
	if total > 1+WeightTolerance {
		return total, fmt.Errorf("%w: %.4f", ErrWeightSum, total)
	}
	return total, nil
}

// Normalize returns a copy of components whose weights sum to 1.
// Weight sets that already sum to 1 are returned unchanged.
func Normalize(components []Component) ([]Component, error) {
	total, err := ValidateWeights(components)
	if err != nil {
		return nil, err
	}
	out := make([]Component, len(components))
	copy(out, components)
	if len(out) == 0 {
		return out, nil
	}
	if total == 0 {
		return nil, ErrNoWeight
	}
	if math.Abs(total-1) <= WeightTolerance {
		return out, nil
	}
	for i := range out {
		out[i].Weight = out[i].Weight / total
	}
	return out, nil
}

// WeightedAverage returns Σ value·weight over normalized weights
func WeightedAverage(components []Component) (float64, error) {
	normalized, err := Normalize(components)
	if err != nil {
		return 0, err
	}
	sum := 0.0
	for _, c := range normalized {
		sum += c.Value * c.Weight
	}
	return sum, nil
}

// Rank returns the component names ordered by Value·Weight, highest first.
// Ties keep input order.
func Rank(components []Component) []string {
	ranked := make([]Component, len(components))
	copy(ranked, components)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Value*ranked[i].Weight > ranked[j].Value*ranked[j].Weight
	})
	names := make([]string, len(ranked))
	for i, c := range ranked {
		names[i] = c.Name
	}
	return names
}

// Clamp bounds v to [lo, hi]
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
