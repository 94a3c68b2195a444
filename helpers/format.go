package helpers

import (
	"fmt"
	"math"
)

// Round rounds v to the given number of decimal places
func Round(v float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}

// FormatPosition formats a search position with one decimal, e.g. "#7.9"
func FormatPosition(pos float64) string {
	return fmt.Sprintf("#%.1f", pos)
}

// FormatPercent formats a 0-1 ratio as a percentage, e.g. 0.834 -> "83.4%"
func FormatPercent(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}

// FormatCount formats a number with thousand separators, e.g. 12500 -> "12,500"
func FormatCount(amount float64) string {
	value := int64(math.Round(amount))

	negative := value < 0
	if negative {
		value = -value
	}

	str := fmt.Sprintf("%d", value)
	length := len(str)

	var result string
	for i, digit := range str {
		if i > 0 && (length-i)%3 == 0 {
			result += ","
		}
		result += string(digit)
	}

	if negative {
		return "-" + result
	}
	return result
}
