package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassroomNorm(t *testing.T) {
	tests := []struct {
		category string
		want     int
	}{
		{"1", 30},
		{"4", 35},
		{"5", 35},
		{"8", 40},
		{"11", 40},
		{" 2 ", 30},
		{"99", 30}, // unmapped falls back to the most conservative norm
		{"", 30},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassroomNorm(tt.category), "category %q", tt.category)
	}
}

func TestPTRNorm(t *testing.T) {
	tests := []struct {
		category string
		want     int
	}{
		{"4", 35},
		{"5", 30}, // diverges from the classroom table
		{"7", 30},
		{"8", 30},
		{"10", 30},
		{"unknown", 30},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PTRNorm(tt.category), "category %q", tt.category)
	}
}

func TestRequiredCapacity(t *testing.T) {
	tests := []struct {
		name      string
		enrolment int
		norm      int
		want      int
	}{
		{"exact multiple", 900, 30, 30},
		{"rounds up", 901, 30, 31},
		{"single student", 1, 40, 1},
		{"zero enrolment", 0, 30, 0},
		{"negative enrolment", -5, 30, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RequiredCapacity(tt.enrolment, tt.norm))
		})
	}
}

func TestShortfall(t *testing.T) {
	assert.Equal(t, 5, Shortfall(30, 25))
	assert.Equal(t, 0, Shortfall(30, 30))
	assert.Equal(t, 0, Shortfall(25, 40), "surplus never goes negative")
}

func TestRiskLevelFor(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{0.0, RiskLow},
		{0.20, RiskLow},
		{0.2001, RiskModerate},
		{0.50, RiskModerate},
		{0.5001, RiskHigh},
		{0.75, RiskHigh}, // boundary stays in the lower band
		{0.7501, RiskCritical},
		{1.0, RiskCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RiskLevelFor(tt.score), "score %v", tt.score)
	}
}

func TestConsecutiveYears(t *testing.T) {
	assert.True(t, consecutiveYears("2020-21", "2021-22"))
	assert.False(t, consecutiveYears("2020-21", "2022-23"))
	assert.False(t, consecutiveYears("garbage", "2021-22"))
}

func TestAddYears(t *testing.T) {
	assert.Equal(t, "2024-25", addYears("2023-24", 1))
	assert.Equal(t, "2026-27", addYears("2023-24", 3))
	assert.Equal(t, "2100-01", addYears("2099-00", 1))
	assert.Equal(t, "garbage", addYears("garbage", 2))
}
