package engine

import (
	"localsearch-forecast/helpers"
	"localsearch-forecast/scoring"
)

// Position bounds for search rank predictions. Lower is better.
const (
	MinPosition = 1.0
	MaxPosition = 100.0
)

// RandomSource supplies uniform values in [0,1). It is only consulted for explicit
// stochastic exploration; *rand.Rand from math/rand/v2 satisfies it.
type RandomSource interface {
	Float64() float64
}

// PredictOptions controls how a factor set is applied to a position
type PredictOptions struct {
	Model PredictionModel
	// TrendShift is added to the position delta; positive values improve the position
	TrendShift float64
	// Random and Jitter enable bounded exploration noise of ±Jitter positions
	Random RandomSource
	Jitter float64
}

// FactorDelta returns Σ ((target-current)/ReferenceScale)·impact·weight over the factors the
// model consumes. Fallback factors carry no evidence and are skipped.
func FactorDelta(factors []PerformanceFactor, model PredictionModel) float64 {
	delta := 0.0
	for _, f := range factors {
		if f.Fallback || !model.UsesFeature(f.Name) {
			continue
		}
		delta += ((f.TargetValue - f.CurrentValue) / ReferenceScale) * f.Impact * f.Weight
	}
	return delta
}

// PredictPosition projects the future position from the current one.
// Without factors, trends or jitter the current position is returned unchanged.
func PredictPosition(current float64, factors []PerformanceFactor, opts PredictOptions) float64 {
	return project(current, FactorDelta(factors, opts.Model), opts)
}

// ScenarioPosition projects the position when the assumed factor changes are realized on
// top of the baseline trajectory. Deltas are in reference units and the resulting factor
// value is kept inside [0, ReferenceScale].
func ScenarioPosition(current float64, factors []PerformanceFactor, deltas map[string]float64, opts PredictOptions) float64 {
	extra := 0.0
	for _, f := range factors {
		delta, ok := deltas[f.Name]
		if !ok || f.Fallback || !opts.Model.UsesFeature(f.Name) {
			continue
		}
		applied := scoring.Clamp(f.CurrentValue+delta, 0, ReferenceScale) - f.CurrentValue
		extra += (applied / ReferenceScale) * f.Impact * f.Weight
	}
	return project(current, FactorDelta(factors, opts.Model)+extra, opts)
}

func project(current, factorDelta float64, opts PredictOptions) float64 {
	sensitivity := opts.Model.Sensitivity
	if sensitivity <= 0 {
		sensitivity = DefaultSensitivity
	}

	delta := sensitivity*factorDelta + opts.TrendShift
	if opts.Random != nil && opts.Jitter > 0 {
		delta += (opts.Random.Float64()*2 - 1) * opts.Jitter
	}

	// position metric: improvement means a lower number
	predicted := scoring.Clamp(current-delta, MinPosition, MaxPosition)
	return helpers.Round(predicted, 1)
}
