package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateGrowth(t *testing.T) {
	tests := []struct {
		name       string
		enrolments []int
		want       float64
	}{
		{"steady 10%", []int{1000, 1100, 1210, 1331}, 0.1000},
		{"single year has no transitions", []int{500}, 0},
		{"empty history", nil, 0},
		{"two years uses one transition", []int{100, 105}, 0.05},
		{"zero start transition is skipped", []int{0, 50, 60}, 0.2},
		{"explosive growth clipped", []int{100, 200}, growthClip},
		{"collapse clipped", []int{200, 50}, -growthClip},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, EstimateGrowth(tt.enrolments), 1e-9)
		})
	}
}

func TestEstimateGrowthRecencyWeighting(t *testing.T) {
	// Transitions: +10% (oldest, weight 1), 0% (weight 2), +20% (newest,
	// weight 3). Weighted mean = (3*0.2 + 2*0 + 1*0.1) / 6.
	got := EstimateGrowth([]int{100, 110, 110, 132})
	assert.InDelta(t, 0.7/6.0, got, 1e-9)
}

func TestProjectEnrolment(t *testing.T) {
	assert.Equal(t, 133, ProjectEnrolment(121, 0.10, 1))
	assert.Equal(t, 146, ProjectEnrolment(121, 0.10, 2))
	assert.Equal(t, 161, ProjectEnrolment(121, 0.10, 3))
	assert.Equal(t, 100, ProjectEnrolment(100, 0, 3), "zero growth round trips")
	assert.Equal(t, 34, ProjectEnrolment(100, -0.30, 3))
	assert.Equal(t, 0, ProjectEnrolment(0, 0.10, 1))
}

func TestBuildForecasts(t *testing.T) {
	rows := BuildForecasts(SchoolHistory{
		SchoolID:          "S1",
		Category:          "1",
		Years:             []string{"2021-22", "2022-23", "2023-24"},
		Enrolments:        []int{750, 825, 908},
		CurrentClassrooms: 25,
		CurrentTeachers:   28,
	})
	require.Len(t, rows, 3)

	first := rows[0]
	assert.Equal(t, "2023-24", first.BaseYear)
	assert.Equal(t, "2024-25", first.ForecastYear)
	assert.Equal(t, 1, first.YearsAhead)
	assert.Equal(t, 908, first.BaseEnrolment)
	assert.Greater(t, first.ProjectedEnrolment, 908)

	// Requirements follow the same norms as the present-day stages, gaps
	// compare against today's capacity.
	assert.Equal(t, (first.ProjectedEnrolment+29)/30, first.ProjectedClassroomsReq)
	assert.Equal(t, 25, first.CurrentClassrooms)
	assert.Equal(t, first.ProjectedClassroomsReq-25, first.ProjectedClassroomGap)

	assert.Equal(t, "2026-27", rows[2].ForecastYear)
	assert.Equal(t, 3, rows[2].YearsAhead)
	assert.GreaterOrEqual(t, rows[2].ProjectedEnrolment, rows[1].ProjectedEnrolment)
}

func TestBuildForecastsZeroGrowth(t *testing.T) {
	rows := BuildForecasts(SchoolHistory{
		SchoolID:          "S1",
		Category:          "1",
		Years:             []string{"2022-23", "2023-24"},
		Enrolments:        []int{600, 600},
		CurrentClassrooms: 20,
		CurrentTeachers:   20,
	})
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Equal(t, 600, row.ProjectedEnrolment)
		assert.Equal(t, 20, row.ProjectedClassroomsReq)
		assert.Equal(t, 0, row.ProjectedClassroomGap)
	}
}

func TestBuildForecastsEmptyHistory(t *testing.T) {
	assert.Nil(t, BuildForecasts(SchoolHistory{SchoolID: "S1"}))
}
