package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeTrendsSingleSchool(t *testing.T) {
	points := ComputeTrends([]TrendObservation{
		{SchoolID: "S1", AcademicYear: "2021-22", RiskScore: 0.30, RiskLevel: RiskModerate},
		{SchoolID: "S1", AcademicYear: "2022-23", RiskScore: 0.45, RiskLevel: RiskModerate},
		{SchoolID: "S1", AcademicYear: "2023-24", RiskScore: 0.18, RiskLevel: RiskLow},
	})
	require.Len(t, points, 3)

	first := points[0]
	assert.Nil(t, first.RiskDelta)
	assert.Nil(t, first.PrevRiskScore)
	assert.Equal(t, TrendBaseline, first.TrendDirection)
	assert.Equal(t, 1, first.YearSequence)
	assert.Equal(t, 0.30, first.CumulativeAvgRisk)

	second := points[1]
	require.NotNil(t, second.RiskDelta)
	assert.Equal(t, 0.15, *second.RiskDelta)
	assert.Equal(t, TrendDeteriorating, second.TrendDirection)
	assert.Equal(t, 2, second.YearSequence)
	assert.Equal(t, 0.375, second.CumulativeAvgRisk)

	third := points[2]
	require.NotNil(t, third.RiskDelta)
	assert.Equal(t, -0.27, *third.RiskDelta)
	assert.Equal(t, TrendImproving, third.TrendDirection)
	assert.Equal(t, 3, third.YearSequence)
	assert.Equal(t, 0.31, third.CumulativeAvgRisk)
	assert.True(t, third.VolatileFlag, "swing beyond 0.25 marks the year volatile")
}

func TestComputeTrendsStableBand(t *testing.T) {
	points := ComputeTrends([]TrendObservation{
		{SchoolID: "S1", AcademicYear: "2022-23", RiskScore: 0.40, RiskLevel: RiskModerate},
		{SchoolID: "S1", AcademicYear: "2023-24", RiskScore: 0.50, RiskLevel: RiskModerate},
	})
	require.Len(t, points, 2)

	// A move of exactly 0.10 sits inside the stable band.
	assert.Equal(t, TrendStable, points[1].TrendDirection)
	assert.False(t, points[1].VolatileFlag)
}

func TestComputeTrendsVolatilityCarriesOneYear(t *testing.T) {
	points := ComputeTrends([]TrendObservation{
		{SchoolID: "S1", AcademicYear: "2020-21", RiskScore: 0.10, RiskLevel: RiskLow},
		{SchoolID: "S1", AcademicYear: "2021-22", RiskScore: 0.60, RiskLevel: RiskHigh},
		{SchoolID: "S1", AcademicYear: "2022-23", RiskScore: 0.58, RiskLevel: RiskHigh},
		{SchoolID: "S1", AcademicYear: "2023-24", RiskScore: 0.57, RiskLevel: RiskHigh},
	})
	require.Len(t, points, 4)

	assert.True(t, points[1].VolatileFlag, "the jump year itself")
	assert.True(t, points[2].VolatileFlag, "previous delta still in the window")
	assert.False(t, points[3].VolatileFlag)
}

func TestComputeTrendsChronicFlag(t *testing.T) {
	points := ComputeTrends([]TrendObservation{
		{SchoolID: "S1", AcademicYear: "2021-22", RiskScore: 0.60, RiskLevel: RiskHigh},
		{SchoolID: "S1", AcademicYear: "2022-23", RiskScore: 0.80, RiskLevel: RiskCritical},
		{SchoolID: "S1", AcademicYear: "2023-24", RiskScore: 0.62, RiskLevel: RiskHigh},
	})
	require.Len(t, points, 3)

	assert.False(t, points[0].ChronicRiskFlag)
	assert.False(t, points[1].ChronicRiskFlag)
	assert.True(t, points[2].ChronicRiskFlag)
}

func TestComputeTrendsSeparatesSchools(t *testing.T) {
	points := ComputeTrends([]TrendObservation{
		{SchoolID: "S2", AcademicYear: "2023-24", RiskScore: 0.70, RiskLevel: RiskHigh},
		{SchoolID: "S1", AcademicYear: "2022-23", RiskScore: 0.20, RiskLevel: RiskLow},
		{SchoolID: "S1", AcademicYear: "2023-24", RiskScore: 0.25, RiskLevel: RiskModerate},
	})
	require.Len(t, points, 3)

	// Output is grouped by school in ID order, chronological within.
	assert.Equal(t, "S1", points[0].SchoolID)
	assert.Equal(t, 1, points[0].YearSequence)
	assert.Equal(t, "S2", points[2].SchoolID)
	assert.Equal(t, TrendBaseline, points[2].TrendDirection,
		"another school's history never leaks into the baseline")
}
