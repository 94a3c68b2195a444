package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"localsearch-forecast/metrics"
	"localsearch-forecast/scoring"
)

// Factor names produced by the default aggregator
const (
	FactorCitationConsistency = "citation_consistency"
	FactorReviews             = "reviews"
	FactorContentQuality      = "content_quality"
	FactorTechnicalSEO        = "technical_seo"
	FactorCompetitivePosition = "competitive_position"
	FactorUserBehavior        = "user_behavior"
)

// ReferenceScale is the value range every factor is normalized to
const ReferenceScale = 100.0

// Reading is a raw factor value as delivered by a FactorProvider, in the provider's own unit
type Reading struct {
	CurrentValue float64     `json:"current_value" yaml:"current"`
	TargetValue  float64     `json:"target_value" yaml:"target"`
	Trend        FactorTrend `json:"trend" yaml:"trend"`
	UpdatedAt    time.Time   `json:"updated_at" yaml:"updated_at"`
}

// KeywordSnapshot is the current observed state of a keyword for a location
type KeywordSnapshot struct {
	Position       float64 `json:"position" yaml:"position"`
	MonthlyTraffic float64 `json:"monthly_traffic" yaml:"monthly_traffic"`
	ConversionRate float64 `json:"conversion_rate" yaml:"conversion_rate"`
}

// FactorProvider supplies factor readings from the citation, content, technical,
// competitor and user-behavior subsystems. Missing data is reported as ErrFactorMissing.
type FactorProvider interface {
	GetFactor(ctx context.Context, locationKey, keyword, factorName string) (Reading, error)
	GetSnapshot(ctx context.Context, locationKey, keyword string) (KeywordSnapshot, error)
}

// FactorSpec is the fixed definition of one aggregated factor
type FactorSpec struct {
	Name     string
	Category FactorCategory
	Weight   float64
	Impact   float64
	// Scale is the maximum raw value; readings are normalized to ReferenceScale
	Scale float64
	// DefaultTarget is used when a reading has no target, in raw units
	DefaultTarget float64
	// FallbackValue replaces a missing reading when set, in raw units
	FallbackValue *float64
	Effort        Effort
	Action        string
}

// DefaultFactorSpecs returns the documented default factor weights.
// Local signals carry 0.45 split across citation consistency and reviews.
func DefaultFactorSpecs() []FactorSpec {
	return []FactorSpec{
		{
			Name: FactorCitationConsistency, Category: CategoryLocal, Weight: 0.25, Impact: 0.8,
			Scale: 100, DefaultTarget: 95, Effort: EffortMedium,
			Action: "Fix inconsistent NAP data across citation directories and claim missing listings",
		},
		{
			Name: FactorReviews, Category: CategoryLocal, Weight: 0.20, Impact: 0.7,
			Scale: 5, DefaultTarget: 4.5, Effort: EffortMedium,
			Action: "Run a review acquisition campaign and respond to every Google Business Profile review",
		},
		{
			Name: FactorContentQuality, Category: CategoryContent, Weight: 0.18, Impact: 0.6,
			Scale: 100, DefaultTarget: 85, Effort: EffortHigh,
			Action: "Expand the location landing page with localized service content and FAQs",
		},
		{
			Name: FactorTechnicalSEO, Category: CategoryTechnical, Weight: 0.15, Impact: 0.5,
			Scale: 100, DefaultTarget: 90, Effort: EffortLow,
			Action: "Resolve crawl errors, add LocalBusiness structured data and improve Core Web Vitals",
		},
		{
			Name: FactorCompetitivePosition, Category: CategoryCompetition, Weight: 0.12, Impact: 0.5,
			Scale: 100, DefaultTarget: 75, Effort: EffortHigh,
			Action: "Close the gap to top local competitors on categories, photos and service coverage",
		},
		{
			Name: FactorUserBehavior, Category: CategoryUserBehavior, Weight: 0.10, Impact: 0.6,
			Scale: 100, DefaultTarget: 70, Effort: EffortMedium,
			Action: "Improve click-through with better titles and add calls, directions and booking actions",
		},
	}
}

// Aggregator turns provider readings into a validated factor set
type Aggregator struct {
	provider FactorProvider
	specs    []FactorSpec
	timeout  time.Duration
	logger   *logrus.Entry
	now      func() time.Time
}

// NewAggregator creates an aggregator. A zero timeout disables the per-call deadline.
func NewAggregator(provider FactorProvider, specs []FactorSpec, timeout time.Duration, logger *logrus.Entry) *Aggregator {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Aggregator{
		provider: provider,
		specs:    specs,
		timeout:  timeout,
		logger:   logger.WithField("component", "factor_aggregator"),
		now:      time.Now,
	}
}

// Specs returns the factor definitions used by the aggregator
func (a *Aggregator) Specs() []FactorSpec {
	return a.specs
}

// Aggregate reads every configured factor for the key. Missing or timed out readings are
// included as fallback factors; only cancellation of ctx aborts the aggregation.
func (a *Aggregator) Aggregate(ctx context.Context, locationKey, keyword string) ([]PerformanceFactor, error) {
	factors := make([]PerformanceFactor, 0, len(a.specs))

	for _, spec := range a.specs {
		reading, err := a.read(ctx, locationKey, keyword, spec.Name)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			factors = append(factors, a.fallbackFactor(spec))
			continue
		}

		factor, err := normalizeReading(spec, reading)
		if err != nil {
			return nil, err
		}
		if factor.LastUpdated.IsZero() {
			factor.LastUpdated = a.now()
		}
		factor.LastUpdated = factor.LastUpdated.UTC().Truncate(time.Microsecond)
		factors = append(factors, factor)
	}

	return ValidateFactors(factors)
}

func (a *Aggregator) read(ctx context.Context, locationKey, keyword, name string) (Reading, error) {
	callCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	reading, err := a.provider.GetFactor(callCtx, locationKey, keyword, name)
	switch {
	case err == nil:
		metrics.RecordProviderCall("ok")
		return reading, nil
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout):
		metrics.RecordProviderCall("timeout")
		a.logger.WithFields(logrus.Fields{"location": locationKey, "keyword": keyword, "factor": name}).
			Warn("⚠️  Factor provider timed out, treating factor as missing")
		return Reading{}, fmt.Errorf("%s: %w", name, ErrTimeout)
	case errors.Is(err, ErrFactorMissing):
		metrics.RecordProviderCall("missing")
		return Reading{}, err
	default:
		metrics.RecordProviderCall("error")
		a.logger.WithError(err).WithFields(logrus.Fields{"location": locationKey, "keyword": keyword, "factor": name}).
			Warn("⚠️  Factor provider failed, treating factor as missing")
		return Reading{}, err
	}
}

func (a *Aggregator) fallbackFactor(spec FactorSpec) PerformanceFactor {
	current := 0.0
	if spec.FallbackValue != nil {
		current = toReference(*spec.FallbackValue, spec.Scale)
	}
	return PerformanceFactor{
		Name:         spec.Name,
		Category:     spec.Category,
		Weight:       spec.Weight,
		CurrentValue: current,
		TargetValue:  toReference(spec.DefaultTarget, spec.Scale),
		Impact:       spec.Impact,
		Trend:        TrendStable,
		LastUpdated:  a.now().UTC().Truncate(time.Microsecond),
		Fallback:     true,
	}
}

func normalizeReading(spec FactorSpec, r Reading) (PerformanceFactor, error) {
	if math.IsNaN(r.CurrentValue) || math.IsInf(r.CurrentValue, 0) {
		return PerformanceFactor{}, newFactorDataError(spec.Name, "current value is not a number", r.CurrentValue)
	}
	target := r.TargetValue
	if target == 0 {
		target = spec.DefaultTarget
	}
	trend := r.Trend
	if trend == "" {
		trend = TrendStable
	}
	return PerformanceFactor{
		Name:         spec.Name,
		Category:     spec.Category,
		Weight:       spec.Weight,
		CurrentValue: toReference(r.CurrentValue, spec.Scale),
		TargetValue:  toReference(target, spec.Scale),
		Impact:       spec.Impact,
		Trend:        trend,
		LastUpdated:  r.UpdatedAt,
	}, nil
}

func toReference(raw, scale float64) float64 {
	if scale <= 0 || scale == ReferenceScale {
		return raw
	}
	return raw / scale * ReferenceScale
}

// ValidateFactors rejects malformed factors and renormalizes weights that sum below 1.
// The input is not modified.
func ValidateFactors(factors []PerformanceFactor) ([]PerformanceFactor, error) {
	components := make([]scoring.Component, len(factors))
	for i, f := range factors {
		if f.Name == "" {
			return nil, newFactorDataError(fmt.Sprintf("#%d", i), "name is required", nil)
		}
		for _, v := range []float64{f.CurrentValue, f.TargetValue} {
			if math.IsNaN(v) || v < 0 || v > ReferenceScale {
				return nil, newFactorDataError(f.Name, "value outside [0,100]", v)
			}
		}
		if math.IsNaN(f.Impact) || f.Impact < -1 || f.Impact > 1 {
			return nil, newFactorDataError(f.Name, "impact outside [-1,1]", f.Impact)
		}
		components[i] = scoring.Component{Name: f.Name, Value: f.CurrentValue, Weight: f.Weight}
	}

	normalized, err := scoring.Normalize(components)
	if err != nil {
		return nil, newFactorDataError("weights", err.Error(), nil)
	}

	out := make([]PerformanceFactor, len(factors))
	copy(out, factors)
	for i := range out {
		out[i].Weight = normalized[i].Weight
	}
	return out, nil
}

// Completeness returns the fraction of factors backed by a real reading
func Completeness(factors []PerformanceFactor) float64 {
	if len(factors) == 0 {
		return 0
	}
	withReading := 0
	for _, f := range factors {
		if !f.Fallback {
			withReading++
		}
	}
	return float64(withReading) / float64(len(factors))
}
