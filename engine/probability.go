package engine

import "localsearch-forecast/scoring"

// Heuristic constants for the outcome distribution
const (
	baseImprove        = 0.10
	headroomImprove    = 0.20
	deltaImprove       = 0.40
	baseDecline        = 0.05
	topPositionDecline = 0.10
	deltaDecline       = 0.40
	gapDecline         = 0.10
	// positions moved for the delta terms to saturate
	deltaSaturation = 5.0
	// positions at or above this rank carry extra downside risk
	topPositions = 3.0
)

// CalculateProbability turns current vs predicted position and factor gaps into a normalized
// {improve, maintain, decline} distribution. Improve grows with headroom and predicted gain,
// decline has a small base risk that is higher for top positions, maintain takes the remainder.
func CalculateProbability(current, predicted float64, factors []PerformanceFactor) Probability {
	headroom := scoring.Clamp((current-MinPosition)/(MaxPosition-MinPosition), 0, 1)
	gain := current - predicted

	improve := baseImprove + headroomImprove*headroom + scoring.Clamp(gain/deltaSaturation, -1, 1)*deltaImprove

	decline := baseDecline + scoring.Clamp(-gain/deltaSaturation, 0, 1)*deltaDecline + averageGap(factors)/ReferenceScale*gapDecline
	if current <= topPositions {
		decline += topPositionDecline
	}

	improve = scoring.Clamp(improve, 0, 1)
	decline = scoring.Clamp(decline, 0, 1)
	maintain := scoring.Clamp(1-improve-decline, 0, 1)

	sum := improve + maintain + decline
	p := Probability{Improve: improve / sum, Decline: decline / sum}
	p.Maintain = 1 - p.Improve - p.Decline
	if p.Maintain < 0 {
		p.Maintain = 0
	}
	return p
}

// averageGap is the mean absolute gap of factors with real readings
func averageGap(factors []PerformanceFactor) float64 {
	sum, n := 0.0, 0
	for _, f := range factors {
		if f.Fallback {
			continue
		}
		sum += f.Gap()
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
