// Package engine implements the local search performance prediction pipeline.
//
// The pipeline for a single (location, keyword) pair:
//   - Factor aggregation: raw readings from the FactorProvider become a weighted factor set
//   - Prediction: the factor set is applied through the active ranking model
//   - Confidence: derived from data completeness and factor gaps
//   - Outcome probability: {improve, maintain, decline} distribution
//   - Recommendations: weak factors ranked by impact
//
// Active trends for the location adjust the predicted delta. Stored predictions are rolled
// up per location by the forecast aggregator.
//
// All scoring functions are pure; the only suspension point is the FactorProvider.
package engine

import "time"

// FactorCategory groups factors by the subsystem that produces them
type FactorCategory string

const (
	CategoryTechnical    FactorCategory = "technical"
	CategoryContent      FactorCategory = "content"
	CategoryLocal        FactorCategory = "local"
	CategoryCompetition  FactorCategory = "competition"
	CategoryUserBehavior FactorCategory = "user_behavior"
)

// FactorTrend is the recent direction of a factor reading
type FactorTrend string

const (
	TrendImproving FactorTrend = "improving"
	TrendStable    FactorTrend = "stable"
	TrendDeclining FactorTrend = "declining"
)

// PerformanceFactor is one weighted signal contributing to a prediction.
// CurrentValue and TargetValue share the 0-100 reference scale.
type PerformanceFactor struct {
	Name         string         `json:"name"`
	Category     FactorCategory `json:"category"`
	Weight       float64        `json:"weight"`
	CurrentValue float64        `json:"current_value"`
	TargetValue  float64        `json:"target_value"`
	Impact       float64        `json:"impact"`
	Trend        FactorTrend    `json:"trend"`
	LastUpdated  time.Time      `json:"last_updated"`

	// Fallback marks a factor whose reading was missing, timed out or was rejected by the
	// provider guard. Fallback factors lower data completeness and never move the prediction.
	Fallback bool `json:"fallback,omitempty"`
}

// Gap returns the absolute distance between current and target value
func (f PerformanceFactor) Gap() float64 {
	gap := f.TargetValue - f.CurrentValue
	if gap < 0 {
		return -gap
	}
	return gap
}

// ModelType identifies what a prediction model forecasts
type ModelType string

const (
	ModelRanking     ModelType = "ranking"
	ModelTraffic     ModelType = "traffic"
	ModelConversion  ModelType = "conversion"
	ModelCompetition ModelType = "competition"
)

// PredictionModel describes a trained model. Models are read-only at request time.
type PredictionModel struct {
	ID       string    `json:"id" yaml:"id"`
	Type     ModelType `json:"type" yaml:"type"`
	Accuracy float64   `json:"accuracy" yaml:"accuracy"`
	Features []string  `json:"features" yaml:"features"`
	Active   bool      `json:"active" yaml:"active"`

	// Sensitivity is the number of positions moved per unit of weighted factor delta
	Sensitivity float64   `json:"sensitivity,omitempty" yaml:"sensitivity,omitempty"`
	Version     string    `json:"version,omitempty" yaml:"version,omitempty"`
	TrainedAt   time.Time `json:"trained_at,omitempty" yaml:"trained_at,omitempty"`
}

// UsesFeature reports whether the model consumes the named factor.
// A model without a feature list consumes every factor.
func (m PredictionModel) UsesFeature(name string) bool {
	if len(m.Features) == 0 {
		return true
	}
	for _, f := range m.Features {
		if f == name {
			return true
		}
	}
	return false
}

// Probability is the normalized outcome distribution of a prediction
type Probability struct {
	Improve  float64 `json:"improve"`
	Maintain float64 `json:"maintain"`
	Decline  float64 `json:"decline"`
}

// Sum returns improve + maintain + decline
func (p Probability) Sum() float64 {
	return p.Improve + p.Maintain + p.Decline
}

// Effort is the expected cost of acting on a recommendation
type Effort string

const (
	EffortLow    Effort = "low"
	EffortMedium Effort = "medium"
	EffortHigh   Effort = "high"
)

// Priority ranks recommendations for dashboards
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
)

// Recommendation is an action derived from a weak factor
type Recommendation struct {
	Factor   string   `json:"factor"`
	Action   string   `json:"action"`
	Impact   float64  `json:"impact"`
	Effort   Effort   `json:"effort"`
	Priority Priority `json:"priority"`
}

// SearchPrediction is the immutable result of one prediction run.
// Later runs for the same key supersede it; it is never mutated.
type SearchPrediction struct {
	LocationKey       string              `json:"location_key"`
	Keyword           string              `json:"keyword"`
	CurrentPosition   float64             `json:"current_position"`
	PredictedPosition float64             `json:"predicted_position"`
	Confidence        float64             `json:"confidence"`
	TimeFrame         string              `json:"time_frame"`
	Factors           []PerformanceFactor `json:"factors"`
	Probability       Probability         `json:"probability"`
	Recommendations   []Recommendation    `json:"recommendations"`
	ModelID           string              `json:"model_id"`
	TrendAdjustment   float64             `json:"trend_adjustment"`
	CurrentTraffic    float64             `json:"current_traffic"`
	ConversionRate    float64             `json:"conversion_rate"`
	CreatedAt         time.Time           `json:"created_at"`
}

// Key returns the storage key of the prediction
func (p SearchPrediction) Key() Key {
	return Key{LocationKey: p.LocationKey, Keyword: p.Keyword}
}

// Key addresses one (location, keyword) asset
type Key struct {
	LocationKey string `json:"location_key" validate:"required"`
	Keyword     string `json:"keyword" validate:"required"`
}

func (k Key) String() string {
	return k.LocationKey + "|" + k.Keyword
}

// TrendType classifies the cause of a trend
type TrendType string

const (
	TrendSeasonal    TrendType = "seasonal"
	TrendCompetitive TrendType = "competitive"
	TrendAlgorithm   TrendType = "algorithm"
	TrendMarket      TrendType = "market"
)

// TrendImpact is the direction a trend pushes affected keywords
type TrendImpact string

const (
	ImpactPositive TrendImpact = "positive"
	ImpactNegative TrendImpact = "negative"
	ImpactNeutral  TrendImpact = "neutral"
)

// KeywordEffect is the expected per-keyword effect of a trend
type KeywordEffect struct {
	PositionChange float64 `json:"position_change"`
	Confidence     float64 `json:"confidence"`
}

// LocalSearchTrend is a time-bounded external condition for a location
type LocalSearchTrend struct {
	ID               string                   `json:"id"`
	LocationKey      string                   `json:"location_key"`
	TrendType        TrendType                `json:"trend_type"`
	Impact           TrendImpact              `json:"impact"`
	Strength         float64                  `json:"strength"`
	Duration         string                   `json:"duration"`
	AffectedKeywords []string                 `json:"affected_keywords"`
	KeywordEffects   map[string]KeywordEffect `json:"keyword_effects"`
	DetectedAt       time.Time                `json:"detected_at"`
	ExpiresAt        time.Time                `json:"expires_at"`
}

// IsActive reports whether the trend still applies at now
func (t LocalSearchTrend) IsActive(now time.Time) bool {
	return now.Before(t.ExpiresAt)
}

// Affects reports whether the keyword is listed in AffectedKeywords
func (t LocalSearchTrend) Affects(keyword string) bool {
	for _, kw := range t.AffectedKeywords {
		if kw == keyword {
			return true
		}
	}
	return false
}

// Assumption is one what-if change in a scenario
type Assumption struct {
	Factor    string  `json:"factor" validate:"required"`
	Delta     float64 `json:"delta" validate:"gte=-100,lte=100"`
	Timeframe string  `json:"timeframe"`
}

// ScenarioPrediction is one projected metric of a scenario
type ScenarioPrediction struct {
	Metric         string  `json:"metric"`
	CurrentValue   float64 `json:"current_value"`
	PredictedValue float64 `json:"predicted_value"`
	Confidence     float64 `json:"confidence"`
}

// PerformanceScenario is a caller-owned what-if analysis. It never expires.
type PerformanceScenario struct {
	ID          string               `json:"id"`
	LocationKey string               `json:"location_key"`
	Name        string               `json:"name"`
	Assumptions []Assumption         `json:"assumptions"`
	Predictions []ScenarioPrediction `json:"predictions"`
	CreatedAt   time.Time            `json:"created_at"`
}
