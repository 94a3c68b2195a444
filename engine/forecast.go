package engine

import (
	"fmt"
	"math"
	"time"

	"localsearch-forecast/helpers"
	"localsearch-forecast/scoring"
)

// Forecast horizon bounds in months
const (
	MinForecastMonths = 1
	MaxForecastMonths = 36
)

const (
	minTrafficRatio   = 0.5
	maxTrafficRatio   = 2.0
	maxKeyDrivers     = 3
	lowConfidence     = 0.7
	opportunityGain   = 2.0
	topTenPosition    = 10.0
	riskDeclineMargin = 0.5
)

// ForecastParams tunes the conversion projection
type ForecastParams struct {
	// MonthlyConversionGrowth is the relative growth per month, e.g. 0.02
	MonthlyConversionGrowth float64
	// ConversionCap is the maximum projected conversion rate in percent
	ConversionCap float64
	// DefaultConversionRate is used when no prediction carries a conversion rate
	DefaultConversionRate float64
}

// DefaultForecastParams returns the documented defaults: +2 % per month, capped at 5 %
func DefaultForecastParams() ForecastParams {
	return ForecastParams{
		MonthlyConversionGrowth: 0.02,
		ConversionCap:           5.0,
		DefaultConversionRate:   2.0,
	}
}

// ForecastMetrics are the rolled-up metrics of a location
type ForecastMetrics struct {
	AvgPosition    float64 `json:"avg_position"`
	TotalTraffic   float64 `json:"total_traffic"`
	ConversionRate float64 `json:"conversion_rate"`
}

// ForecastResult is the per-location forecast over a horizon.
// HasData is false when the location has no stored predictions.
type ForecastResult struct {
	LocationKey       string          `json:"location_key"`
	Months            int             `json:"months"`
	HasData           bool            `json:"has_data"`
	Keywords          int             `json:"keywords"`
	CurrentMetrics    ForecastMetrics `json:"current_metrics"`
	ForecastedMetrics ForecastMetrics `json:"forecasted_metrics"`
	Confidence        float64         `json:"confidence"`
	KeyDrivers        []string        `json:"key_drivers"`
	Risks             []string        `json:"risks"`
	Opportunities     []string        `json:"opportunities"`
	TrafficModelID    string          `json:"traffic_model_id,omitempty"`
	GeneratedAt       time.Time       `json:"generated_at"`
}

// ValidateHorizon checks the forecast horizon
func ValidateHorizon(months int) error {
	if months < MinForecastMonths || months > MaxForecastMonths {
		return fmt.Errorf("%w: %d months (allowed %d-%d)", ErrInvalidHorizon, months, MinForecastMonths, MaxForecastMonths)
	}
	return nil
}

// AggregateForecast rolls stored predictions up into a location forecast
func AggregateForecast(locationKey string, months int, predictions []SearchPrediction, trends []LocalSearchTrend, params ForecastParams, now time.Time) ForecastResult {
	result := ForecastResult{
		LocationKey:   locationKey,
		Months:        months,
		KeyDrivers:    []string{},
		Risks:         []string{},
		Opportunities: []string{},
		GeneratedAt:   now,
	}
	if len(predictions) == 0 {
		return result
	}
	result.HasData = true
	result.Keywords = len(predictions)

	var sumCurrent, sumPredicted, sumConfidence, traffic, convSum float64
	convN := 0
	for _, p := range predictions {
		sumCurrent += p.CurrentPosition
		sumPredicted += p.PredictedPosition
		sumConfidence += p.Confidence
		traffic += p.CurrentTraffic
		if p.ConversionRate > 0 {
			convSum += p.ConversionRate
			convN++
		}
	}
	n := float64(len(predictions))
	avgCurrent := sumCurrent / n
	avgPredicted := sumPredicted / n

	conversion := params.DefaultConversionRate
	if convN > 0 {
		conversion = convSum / float64(convN)
	}
	projected := conversion
	if conversion < params.ConversionCap {
		projected = math.Min(params.ConversionCap, conversion*math.Pow(1+params.MonthlyConversionGrowth, float64(months)))
	}

	ratio := 1.0
	if avgPredicted > 0 {
		ratio = scoring.Clamp(avgCurrent/avgPredicted, minTrafficRatio, maxTrafficRatio)
	}

	result.CurrentMetrics = ForecastMetrics{
		AvgPosition:    helpers.Round(avgCurrent, 1),
		TotalTraffic:   math.Round(traffic),
		ConversionRate: helpers.Round(conversion, 2),
	}
	result.ForecastedMetrics = ForecastMetrics{
		AvgPosition:    helpers.Round(avgPredicted, 1),
		TotalTraffic:   math.Round(traffic * ratio),
		ConversionRate: helpers.Round(projected, 2),
	}
	result.Confidence = helpers.Round(sumConfidence/n, 3)
	result.KeyDrivers = keyDrivers(predictions)

	for _, p := range predictions {
		switch {
		case p.PredictedPosition-p.CurrentPosition >= riskDeclineMargin:
			result.Risks = append(result.Risks, fmt.Sprintf("%s: predicted to drop from %.1f to %.1f",
				p.Keyword, p.CurrentPosition, p.PredictedPosition))
		case p.CurrentPosition > topTenPosition && p.PredictedPosition <= topTenPosition:
			result.Opportunities = append(result.Opportunities, fmt.Sprintf("%s: projected to enter the top 10 (%.1f to %.1f)",
				p.Keyword, p.CurrentPosition, p.PredictedPosition))
		case p.CurrentPosition-p.PredictedPosition >= opportunityGain:
			result.Opportunities = append(result.Opportunities, fmt.Sprintf("%s: projected gain of %.1f positions",
				p.Keyword, p.CurrentPosition-p.PredictedPosition))
		}
		if p.Confidence < lowConfidence {
			result.Risks = append(result.Risks, fmt.Sprintf("%s: low confidence (%.2f), factor data incomplete",
				p.Keyword, p.Confidence))
		}
	}

	for _, t := range ActiveTrends(trends, now) {
		switch t.Impact {
		case ImpactNegative:
			result.Risks = append(result.Risks, fmt.Sprintf("%s trend (strength %.2f) affecting %d keyword(s)",
				t.TrendType, t.Strength, len(t.AffectedKeywords)))
		case ImpactPositive:
			result.Opportunities = append(result.Opportunities, fmt.Sprintf("%s trend (strength %.2f) affecting %d keyword(s)",
				t.TrendType, t.Strength, len(t.AffectedKeywords)))
		}
	}
	return result
}

// keyDrivers ranks factors by their mean weighted gap across predictions
func keyDrivers(predictions []SearchPrediction) []string {
	type acc struct {
		gap, weight float64
		n           int
	}
	order := []string{}
	totals := map[string]*acc{}
	for _, p := range predictions {
		for _, f := range p.Factors {
			if f.Fallback {
				continue
			}
			a, ok := totals[f.Name]
			if !ok {
				a = &acc{}
				totals[f.Name] = a
				order = append(order, f.Name)
			}
			impact := math.Abs(f.Impact)
			a.gap += f.Gap() * impact
			a.weight += f.Weight
			a.n++
		}
	}

	components := make([]scoring.Component, 0, len(order))
	for _, name := range order {
		a := totals[name]
		if a.gap == 0 {
			continue
		}
		components = append(components, scoring.Component{
			Name:   name,
			Value:  a.gap / float64(a.n),
			Weight: a.weight / float64(a.n),
		})
	}

	drivers := scoring.Rank(components)
	if len(drivers) > maxKeyDrivers {
		drivers = drivers[:maxKeyDrivers]
	}
	return drivers
}
