package engine

import "localsearch-forecast/scoring"

// Confidence bounds. Confidence never exceeds MaxConfidence (irreducible model uncertainty)
// and never drops below MinConfidence while at least one real reading exists.
const (
	MinConfidence = 0.6
	MaxConfidence = 0.95
)

// EstimateConfidence derives a [0, MaxConfidence] confidence from data completeness and
// the mean absolute gap of the factors that have real readings.
func EstimateConfidence(factors []PerformanceFactor) float64 {
	completeness := Completeness(factors)
	if completeness == 0 {
		return 0
	}

	gapSum, n := 0.0, 0
	for _, f := range factors {
		if f.Fallback {
			continue
		}
		gapSum += f.Gap()
		n++
	}
	avgGap := gapSum / float64(n)

	raw := (1 - avgGap/ReferenceScale) * completeness
	return scoring.Clamp(raw, MinConfidence, MaxConfidence)
}
