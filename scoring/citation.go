package scoring

import (
	"strings"
	"unicode"
)

// NAP field weights for citation consistency (name, address, phone)
const (
	citationNameWeight    = 0.40
	citationAddressWeight = 0.35
	citationPhoneWeight   = 0.25
)

// NAP is the Name/Address/Phone triple published for a business
type NAP struct {
	Name    string `json:"name" yaml:"name"`
	Address string `json:"address" yaml:"address"`
	Phone   string `json:"phone" yaml:"phone"`
}

// Citation is a business listing on an external directory
type Citation struct {
	Source string `json:"source" yaml:"source"`
	NAP    `yaml:",inline"`
}

// CitationConsistency scores how well citations agree with the canonical NAP on a 0-100 scale.
// Each citation is scored as the weighted share of matching fields; the result is the mean.
// Returns 0 when there are no citations.
func CitationConsistency(canonical NAP, citations []Citation) float64 {
	if len(citations) == 0 {
		return 0
	}

	total := 0.0
	for _, c := range citations {
		score, err := WeightedAverage([]Component{
			{Name: "name", Value: matchScore(normalizeText(canonical.Name), normalizeText(c.Name)), Weight: citationNameWeight},
			{Name: "address", Value: matchScore(normalizeText(canonical.Address), normalizeText(c.Address)), Weight: citationAddressWeight},
			{Name: "phone", Value: matchScore(normalizePhone(canonical.Phone), normalizePhone(c.Phone)), Weight: citationPhoneWeight},
		})
		if err != nil {
			continue
		}
		total += score
	}
	return total / float64(len(citations)) * 100
}

func matchScore(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	return 0
}

func normalizeText(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// normalizePhone keeps digits only and drops a leading international zero prefix
func normalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimLeft(b.String(), "0")
}
