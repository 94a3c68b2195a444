package engine

import (
	"fmt"
	"sort"
)

// MaxRecommendations is the number of recommendations attached to a prediction
const MaxRecommendations = 3

// Weak factor thresholds relative to the target value
const (
	weakThreshold         = 0.8
	highPriorityThreshold = 0.6
)

// GenerateRecommendations emits one recommendation per weak factor, sorted by impact and
// capped at limit. Fallback factors have no reading to act on and are skipped.
// The result is empty, never nil, when no factor is weak.
func GenerateRecommendations(factors []PerformanceFactor, catalog map[string]FactorSpec, limit int) []Recommendation {
	if limit <= 0 {
		limit = MaxRecommendations
	}

	recs := make([]Recommendation, 0, len(factors))
	for _, f := range factors {
		if f.Fallback || f.CurrentValue >= f.TargetValue*weakThreshold {
			continue
		}

		action := fmt.Sprintf("Improve %s toward its target of %.0f", f.Name, f.TargetValue)
		effort := EffortMedium
		if spec, ok := catalog[f.Name]; ok {
			if spec.Action != "" {
				action = spec.Action
			}
			if spec.Effort != "" {
				effort = spec.Effort
			}
		}

		priority := PriorityMedium
		if f.CurrentValue < f.TargetValue*highPriorityThreshold {
			priority = PriorityHigh
		}

		impact := f.Impact
		if impact < 0 {
			impact = -impact
		}

		recs = append(recs, Recommendation{
			Factor:   f.Name,
			Action:   action,
			Impact:   impact * f.Weight * 100,
			Effort:   effort,
			Priority: priority,
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Impact > recs[j].Impact
	})
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs
}

func specCatalog(specs []FactorSpec) map[string]FactorSpec {
	catalog := make(map[string]FactorSpec, len(specs))
	for _, s := range specs {
		catalog[s.Name] = s
	}
	return catalog
}
