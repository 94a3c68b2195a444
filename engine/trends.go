package engine

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	isoDurationPattern   = regexp.MustCompile(`^P(?:(\d+)Y)?(?:(\d+)M)?(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)
	humanDurationPattern = regexp.MustCompile(`(\d+)\s*(years?|yrs?|months?|mos?|weeks?|wks?|days?|hours?|hrs?|minutes?|mins?)\b`)
)

// TrendExpiry returns detectedAt + duration. Duration accepts ISO-8601 durations ("P3M",
// "P2W", "PT12H") and human strings ("3 months", "2 weeks and 3 days"). Months and years
// are calendar based.
func TrendExpiry(detectedAt time.Time, duration string) (time.Time, error) {
	s := strings.TrimSpace(duration)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty trend duration")
	}

	upper := strings.ToUpper(s)
	if strings.HasPrefix(upper, "P") {
		m := isoDurationPattern.FindStringSubmatch(upper)
		if m == nil || upper == "P" || strings.HasSuffix(upper, "T") {
			return time.Time{}, fmt.Errorf("invalid ISO-8601 duration %q", duration)
		}
		n := make([]int, 7)
		for i := range n {
			if m[i+1] != "" {
				n[i], _ = strconv.Atoi(m[i+1])
			}
		}
		t := detectedAt.AddDate(n[0], n[1], n[2]*7+n[3])
		return t.Add(time.Duration(n[4])*time.Hour + time.Duration(n[5])*time.Minute + time.Duration(n[6])*time.Second), nil
	}

	matches := humanDurationPattern.FindAllStringSubmatch(strings.ToLower(s), -1)
	if len(matches) == 0 {
		return time.Time{}, fmt.Errorf("unrecognized trend duration %q", duration)
	}
	t := detectedAt
	for _, m := range matches {
		n, _ := strconv.Atoi(m[1])
		switch unit := m[2]; {
		case strings.HasPrefix(unit, "y"):
			t = t.AddDate(n, 0, 0)
		case strings.HasPrefix(unit, "mo"):
			t = t.AddDate(0, n, 0)
		case strings.HasPrefix(unit, "w"):
			t = t.AddDate(0, 0, 7*n)
		case strings.HasPrefix(unit, "d"):
			t = t.AddDate(0, 0, n)
		case strings.HasPrefix(unit, "h"):
			t = t.Add(time.Duration(n) * time.Hour)
		default:
			t = t.Add(time.Duration(n) * time.Minute)
		}
	}
	return t, nil
}

// ValidateTrend checks the enumerations and ranges of a trend
func ValidateTrend(t LocalSearchTrend) error {
	if t.LocationKey == "" {
		return newFactorDataError("trend", "location key is required", nil)
	}
	switch t.TrendType {
	case TrendSeasonal, TrendCompetitive, TrendAlgorithm, TrendMarket:
	default:
		return newFactorDataError("trend", "unknown trend type", t.TrendType)
	}
	switch t.Impact {
	case ImpactPositive, ImpactNegative, ImpactNeutral:
	default:
		return newFactorDataError("trend", "unknown impact", t.Impact)
	}
	if math.IsNaN(t.Strength) || t.Strength < 0 || t.Strength > 1 {
		return newFactorDataError("trend", "strength outside [0,1]", t.Strength)
	}
	for kw, eff := range t.KeywordEffects {
		if !finite(eff.PositionChange) {
			return newFactorDataError("trend", "position change for "+kw+" is not a finite number", eff.PositionChange)
		}
		if !finite(eff.Confidence) {
			return newFactorDataError("trend", "confidence for "+kw+" is not a finite number", eff.Confidence)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ActiveTrends filters trends active at now, ordered by detection time
func ActiveTrends(trends []LocalSearchTrend, now time.Time) []LocalSearchTrend {
	active := make([]LocalSearchTrend, 0, len(trends))
	for _, t := range trends {
		if t.IsActive(now) {
			active = append(active, t)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].DetectedAt.Before(active[j].DetectedAt)
	})
	return active
}

// TrendShift sums the position adjustment of every active trend affecting the keyword.
// Positive values improve the position.
func TrendShift(trends []LocalSearchTrend, keyword string, now time.Time) float64 {
	shift := 0.0
	for _, t := range trends {
		if !t.IsActive(now) || !t.Affects(keyword) {
			continue
		}
		change := t.KeywordEffects[keyword].PositionChange
		if change < 0 {
			change = -change
		}
		shift += change * t.Strength * impactSign(t.Impact)
	}
	return shift
}

func impactSign(impact TrendImpact) float64 {
	switch impact {
	case ImpactPositive:
		return 1
	case ImpactNegative:
		return -1
	default:
		return 0
	}
}

// Risk levels of a trend analysis
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// RiskAssessment summarizes the negative pressure on a location
type RiskAssessment struct {
	Level          string  `json:"level"`
	Score          float64 `json:"score"`
	NegativeTrends int     `json:"negative_trends"`
	PositiveTrends int     `json:"positive_trends"`
}

// TrendAnalysis is the result of AnalyzeTrends
type TrendAnalysis struct {
	LocationKey     string             `json:"location_key"`
	ActiveTrends    []LocalSearchTrend `json:"active_trends"`
	RiskAssessment  RiskAssessment     `json:"risk_assessment"`
	Opportunities   []string           `json:"opportunities"`
	Threats         []string           `json:"threats"`
	Recommendations []string           `json:"recommendations"`
	AnalyzedAt      time.Time          `json:"analyzed_at"`
}

var trendAdvice = map[TrendType]map[TrendImpact]string{
	TrendSeasonal: {
		ImpactPositive: "Publish seasonal offers and update Google Business Profile posts ahead of the peak",
		ImpactNegative: "Shift budget to evergreen keywords until the seasonal dip passes",
	},
	TrendCompetitive: {
		ImpactPositive: "Capture share while competitors lose visibility: expand service pages and citations",
		ImpactNegative: "Audit the new competitor's listings, reviews and categories and close the gaps",
	},
	TrendAlgorithm: {
		ImpactPositive: "Double down on the signals the update rewards across all locations",
		ImpactNegative: "Review content quality and technical health against the latest ranking update",
	},
	TrendMarket: {
		ImpactPositive: "Expand keyword coverage to the growing demand segment",
		ImpactNegative: "Refocus on high-intent keywords with the best conversion rates",
	},
}

// AnalyzeTrends builds opportunities, threats and advice from the active trends at now.
// Risk score is the strength of negative trends averaged over all active trends.
func AnalyzeTrends(locationKey string, trends []LocalSearchTrend, now time.Time) TrendAnalysis {
	active := ActiveTrends(trends, now)
	analysis := TrendAnalysis{
		LocationKey:     locationKey,
		ActiveTrends:    active,
		Opportunities:   []string{},
		Threats:         []string{},
		Recommendations: []string{},
		AnalyzedAt:      now,
	}

	negativeStrength := 0.0
	seenAdvice := make(map[string]bool)
	for _, t := range active {
		summary := fmt.Sprintf("%s trend (strength %.2f) affecting %d keyword(s) until %s",
			t.TrendType, t.Strength, len(t.AffectedKeywords), t.ExpiresAt.Format("2006-01-02"))
		switch t.Impact {
		case ImpactPositive:
			analysis.RiskAssessment.PositiveTrends++
			analysis.Opportunities = append(analysis.Opportunities, summary)
		case ImpactNegative:
			analysis.RiskAssessment.NegativeTrends++
			negativeStrength += t.Strength
			analysis.Threats = append(analysis.Threats, summary)
		}
		if advice := trendAdvice[t.TrendType][t.Impact]; advice != "" && !seenAdvice[advice] {
			seenAdvice[advice] = true
			analysis.Recommendations = append(analysis.Recommendations, advice)
		}
	}

	if len(active) > 0 {
		analysis.RiskAssessment.Score = negativeStrength / float64(len(active))
	}
	switch score := analysis.RiskAssessment.Score; {
	case score >= 0.5:
		analysis.RiskAssessment.Level = RiskHigh
	case score >= 0.25:
		analysis.RiskAssessment.Level = RiskMedium
	default:
		analysis.RiskAssessment.Level = RiskLow
	}
	return analysis
}
