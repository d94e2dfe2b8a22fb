package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestScoreRiskCompositeScenario(t *testing.T) {
	// Category 1 school, 900 students: 5 of 30 classrooms short, 10 of 30
	// teachers short, no history.
	got := ScoreRisk([]RiskInput{{
		SchoolID:           "S1",
		RequiredClassrooms: 30,
		ClassroomGap:       5,
		RequiredTeachers:   30,
		TeacherGap:         10,
		Enrolment:          900,
	}})
	require.Len(t, got, 1)

	assert.InDelta(t, 1.0/6.0, got[0].ClassroomDeficitRatio, 1e-9)
	assert.InDelta(t, 1.0/3.0, got[0].TeacherDeficitRatio, 1e-9)
	assert.Zero(t, got[0].GrowthRate, "first observed year has no growth")
	assert.Equal(t, 0.2083, got[0].Score)
	assert.Equal(t, RiskModerate, got[0].Level)
}

func TestScoreRiskGrowthHandling(t *testing.T) {
	tests := []struct {
		name       string
		enrolment  int
		prev       *int
		wantGrowth float64
		wantScore  float64
	}{
		{"no predecessor", 500, nil, 0, 0},
		{"zero predecessor", 500, intPtr(0), 0, 0},
		{"moderate growth", 550, intPtr(500), 0.10, 0.02},
		{"shrinkage counts by magnitude", 450, intPtr(500), -0.10, 0.02},
		{"growth magnitude capped at 50%", 1200, intPtr(500), 1.40, 0.10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScoreRisk([]RiskInput{{
				SchoolID:           "S1",
				RequiredClassrooms: 10,
				RequiredTeachers:   10,
				Enrolment:          tt.enrolment,
				PrevEnrolment:      tt.prev,
			}})
			require.Len(t, got, 1)
			assert.InDelta(t, tt.wantGrowth, got[0].GrowthRate, 1e-9)
			assert.Equal(t, tt.wantScore, got[0].Score)
		})
	}
}

func TestScoreRiskDeficitRatioClamps(t *testing.T) {
	// Gap can exceed requirement only if capacity data is inconsistent;
	// the ratio still clamps at 1.
	got := ScoreRisk([]RiskInput{{
		SchoolID:           "S1",
		RequiredClassrooms: 10,
		ClassroomGap:       25,
		RequiredTeachers:   10,
		TeacherGap:         10,
	}})
	require.Len(t, got, 1)
	assert.Equal(t, 1.0, got[0].ClassroomDeficitRatio)
	assert.Equal(t, 1.0, got[0].TeacherDeficitRatio)
	assert.Equal(t, 0.8, got[0].Score)
	assert.Equal(t, RiskCritical, got[0].Level)
}

func TestScoreRiskZeroRequirement(t *testing.T) {
	got := ScoreRisk([]RiskInput{{SchoolID: "S1"}})
	require.Len(t, got, 1)
	assert.Zero(t, got[0].Score)
	assert.Equal(t, RiskLow, got[0].Level)
}
