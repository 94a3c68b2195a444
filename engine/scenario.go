package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"localsearch-forecast/helpers"
	"localsearch-forecast/scoring"
)

// Scenario metric names. Per-keyword positions use MetricPositionPrefix + keyword.
const (
	MetricPositionPrefix = "position:"
	MetricAvgPosition    = "avg_position"
	MetricTraffic        = "traffic"
)

// ScenarioRequest defines a what-if analysis for a location
type ScenarioRequest struct {
	Name        string       `json:"name" validate:"required,max=120"`
	Assumptions []Assumption `json:"assumptions" validate:"required,min=1,dive"`
	Exploration *Exploration `json:"exploration,omitempty"`
}

// Exploration requests stochastic sampling around the deterministic prediction.
// The same seed reproduces the same scenario.
type Exploration struct {
	Samples int     `json:"samples" validate:"gte=1,lte=1000"`
	Jitter  float64 `json:"jitter" validate:"gte=0,lte=10"`
	Seed    uint64  `json:"seed"`
}

// CreateScenario projects every stored prediction of the location with the assumed factor
// changes realized on top of its baseline. Assumptions only move factors that have readings.
func (e *Engine) CreateScenario(ctx context.Context, locationKey string, req ScenarioRequest) (PerformanceScenario, error) {
	deltas, err := e.assumptionDeltas(req.Assumptions)
	if err != nil {
		return PerformanceScenario{}, err
	}

	preds, err := e.predictions.List(ctx, locationKey)
	if err != nil {
		return PerformanceScenario{}, fmt.Errorf("failed to list predictions for %s: %w", locationKey, err)
	}
	if len(preds) == 0 {
		return PerformanceScenario{}, newNotFound("predictions", locationKey)
	}

	model, err := e.resolveModel()
	if err != nil {
		return PerformanceScenario{}, err
	}
	trends := e.locationTrends(ctx, locationKey)
	now := e.timestamp()

	var random RandomSource
	samples := 1
	jitter := 0.0
	if req.Exploration != nil && req.Exploration.Samples > 0 {
		random = NewRandomSource(req.Exploration.Seed)
		samples = req.Exploration.Samples
		jitter = req.Exploration.Jitter
	}

	out := make([]ScenarioPrediction, 0, len(preds)+2)
	var sumCurrent, sumPredicted, sumConfidence, traffic float64
	for _, p := range preds {
		opts := PredictOptions{
			Model:      model,
			TrendShift: TrendShift(trends, p.Keyword, now),
			Random:     random,
			Jitter:     jitter,
		}

		total := 0.0
		for i := 0; i < samples; i++ {
			total += ScenarioPosition(p.CurrentPosition, p.Factors, deltas, opts)
		}
		predicted := helpers.Round(total/float64(samples), 1)
		confidence := helpers.Round(EstimateConfidence(ApplyAssumptions(p.Factors, deltas)), 3)

		out = append(out, ScenarioPrediction{
			Metric:         MetricPositionPrefix + p.Keyword,
			CurrentValue:   p.CurrentPosition,
			PredictedValue: predicted,
			Confidence:     confidence,
		})
		sumCurrent += p.CurrentPosition
		sumPredicted += predicted
		sumConfidence += confidence
		traffic += p.CurrentTraffic
	}

	n := float64(len(preds))
	avgCurrent, avgPredicted := sumCurrent/n, sumPredicted/n
	confidence := helpers.Round(sumConfidence/n, 3)
	ratio := 1.0
	if avgPredicted > 0 {
		ratio = scoring.Clamp(avgCurrent/avgPredicted, minTrafficRatio, maxTrafficRatio)
	}
	out = append(out,
		ScenarioPrediction{
			Metric:         MetricAvgPosition,
			CurrentValue:   helpers.Round(avgCurrent, 1),
			PredictedValue: helpers.Round(avgPredicted, 1),
			Confidence:     confidence,
		},
		ScenarioPrediction{
			Metric:         MetricTraffic,
			CurrentValue:   math.Round(traffic),
			PredictedValue: math.Round(traffic * ratio),
			Confidence:     confidence,
		},
	)

	scenario := PerformanceScenario{
		ID:          uuid.NewString(),
		LocationKey: locationKey,
		Name:        req.Name,
		Assumptions: append([]Assumption{}, req.Assumptions...),
		Predictions: out,
		CreatedAt:   now,
	}
	if err := e.scenarios.Put(ctx, scenario); err != nil {
		return PerformanceScenario{}, fmt.Errorf("failed to store scenario: %w", err)
	}

	e.logger.WithFields(logrus.Fields{
		"location":    locationKey,
		"scenario":    scenario.ID,
		"assumptions": len(req.Assumptions),
		"keywords":    len(preds),
	}).Info("🧪 Scenario created")
	if e.publisher != nil {
		e.publisher.Broadcast(EventScenario, scenario)
	}
	return scenario, nil
}

// GetScenario returns a stored scenario or a NotFound error
func (e *Engine) GetScenario(ctx context.Context, id string) (PerformanceScenario, error) {
	return e.scenarios.Get(ctx, id)
}

// ListScenarios returns the scenarios of a location, oldest first
func (e *Engine) ListScenarios(ctx context.Context, locationKey string) ([]PerformanceScenario, error) {
	return e.scenarios.List(ctx, locationKey)
}

// assumptionDeltas sums the deltas per factor. Unknown factors are rejected.
func (e *Engine) assumptionDeltas(assumptions []Assumption) (map[string]float64, error) {
	if len(assumptions) == 0 {
		return nil, newFactorDataError("assumptions", "at least one assumption is required", nil)
	}
	deltas := make(map[string]float64, len(assumptions))
	for _, a := range assumptions {
		if _, ok := e.catalog[a.Factor]; !ok {
			return nil, newFactorDataError(a.Factor, "unknown factor", nil)
		}
		if math.IsNaN(a.Delta) || a.Delta < -ReferenceScale || a.Delta > ReferenceScale {
			return nil, newFactorDataError(a.Factor, "delta outside [-100,100]", a.Delta)
		}
		deltas[a.Factor] += a.Delta
	}
	return deltas, nil
}

// ApplyAssumptions returns a copy of factors with the deltas added to current values,
// clamped to the reference scale. Fallback factors are left untouched.
func ApplyAssumptions(factors []PerformanceFactor, deltas map[string]float64) []PerformanceFactor {
	out := make([]PerformanceFactor, len(factors))
	copy(out, factors)
	for i := range out {
		delta, ok := deltas[out[i].Name]
		if !ok || out[i].Fallback {
			continue
		}
		out[i].CurrentValue = scoring.Clamp(out[i].CurrentValue+delta, 0, ReferenceScale)
	}
	return out
}
