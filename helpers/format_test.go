package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRound(t *testing.T) {
	assert.Equal(t, 7.9, Round(7.94, 1))
	assert.Equal(t, 0.83, Round(0.8349, 2))
	assert.Equal(t, 12.0, Round(11.6, 0))
}

func TestFormatPosition(t *testing.T) {
	assert.Equal(t, "#7.9", FormatPosition(7.94))
	assert.Equal(t, "#100.0", FormatPosition(100))
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "83.4%", FormatPercent(0.834))
	assert.Equal(t, "0.0%", FormatPercent(0))
}

func TestFormatCount(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{12500, "12,500"},
		{1234567.6, "1,234,568"},
		{-4200, "-4,200"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatCount(tt.in))
	}
}
