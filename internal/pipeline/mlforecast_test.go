package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitLinearModelRecoversLine(t *testing.T) {
	// y = 2 + 3x, no noise.
	features := [][]float64{{1, 0}, {1, 1}, {1, 2}, {1, 3}}
	targets := []float64{2, 5, 8, 11}

	beta, err := fitLinearModel(features, targets)
	require.NoError(t, err)
	require.Len(t, beta, 2)
	assert.InDelta(t, 2, beta[0], 1e-9)
	assert.InDelta(t, 3, beta[1], 1e-9)
}

func TestFitLinearModelSingular(t *testing.T) {
	// Second column duplicates the intercept.
	features := [][]float64{{1, 1}, {1, 1}, {1, 1}}
	targets := []float64{1, 2, 3}

	_, err := fitLinearModel(features, targets)
	assert.ErrorIs(t, err, errSingularModel)
}

func TestFitLinearModelEmpty(t *testing.T) {
	_, err := fitLinearModel(nil, nil)
	assert.ErrorIs(t, err, errSingularModel)
}

func TestPredictGrowthFallsBackWithoutSignal(t *testing.T) {
	// One school with a single observed year: no transitions to train on,
	// so the model falls back to the moving-average estimate.
	histories := []mlHistory{{
		SchoolHistory: SchoolHistory{
			SchoolID:   "S1",
			Category:   "1",
			Years:      []string{"2023-24"},
			Enrolments: []int{500},
		},
	}}
	got := PredictGrowth(histories)
	assert.Equal(t, 0.0, got["S1"])
}

func TestPredictGrowthClipsAndCovers(t *testing.T) {
	histories := []mlHistory{
		{
			SchoolHistory: SchoolHistory{
				SchoolID:   "S1",
				Category:   "1",
				Years:      []string{"2020-21", "2021-22", "2022-23", "2023-24"},
				Enrolments: []int{1000, 1100, 1210, 1331},
			},
			ClassroomDeficit: 0.2,
		},
		{
			SchoolHistory: SchoolHistory{
				SchoolID:   "S2",
				Category:   "8",
				Years:      []string{"2020-21", "2021-22", "2022-23", "2023-24"},
				Enrolments: []int{800, 760, 722, 686},
			},
			TeacherDeficit: 0.4,
		},
	}
	got := PredictGrowth(histories)
	require.Len(t, got, 2)
	for id, g := range got {
		assert.GreaterOrEqual(t, g, -growthClip, "school %s", id)
		assert.LessOrEqual(t, g, growthClip, "school %s", id)
	}
}
