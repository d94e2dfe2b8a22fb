package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompetitionRank(t *testing.T) {
	ranks := competitionRank([]rankable{
		{ID: "A", Score: 0.9},
		{ID: "B", Score: 0.9},
		{ID: "C", Score: 0.5},
		{ID: "D", Score: 0.5},
		{ID: "E", Score: 0.1},
	})

	// Ties share a rank; the next distinct score skips past them.
	assert.Equal(t, 1, ranks["A"])
	assert.Equal(t, 1, ranks["B"])
	assert.Equal(t, 3, ranks["C"])
	assert.Equal(t, 3, ranks["D"])
	assert.Equal(t, 5, ranks["E"])
}

func TestCompetitionRankSingleton(t *testing.T) {
	ranks := competitionRank([]rankable{{ID: "A", Score: 0.3}})
	assert.Equal(t, 1, ranks["A"])
}

func TestPercentileBucket(t *testing.T) {
	tests := []struct {
		name string
		rank int
		n    int
		want string
	}{
		{"top of 100", 1, 100, BucketTop5},
		{"rank 5 of 100 is 4/99", 5, 100, BucketTop5},
		{"rank 6 of 100 crosses 5%", 6, 100, BucketTop10},
		{"rank 10 of 100", 10, 100, BucketTop10},
		{"rank 11 of 100 crosses 10%", 11, 100, BucketTop20},
		{"rank 20 of 100", 20, 100, BucketTop20},
		{"rank 21 of 100 crosses 20%", 21, 100, BucketStandard},
		{"last of 100", 100, 100, BucketStandard},
		{"exactly 5% boundary", 2, 21, BucketTop5},
		{"cohort of one", 1, 1, BucketTop5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PercentileBucket(tt.rank, tt.n))
		})
	}
}

func TestPersistentHighRisk(t *testing.T) {
	tests := []struct {
		name    string
		history []historyEntry
		year    string
		want    bool
	}{
		{
			name: "three consecutive elevated years",
			history: []historyEntry{
				{"2021-22", RiskHigh},
				{"2022-23", RiskCritical},
				{"2023-24", RiskHigh},
			},
			year: "2023-24",
			want: true,
		},
		{
			name: "only two observed years",
			history: []historyEntry{
				{"2022-23", RiskCritical},
				{"2023-24", RiskCritical},
			},
			year: "2023-24",
			want: false,
		},
		{
			name: "calendar gap in the window",
			history: []historyEntry{
				{"2020-21", RiskHigh},
				{"2022-23", RiskHigh},
				{"2023-24", RiskHigh},
			},
			year: "2023-24",
			want: false,
		},
		{
			name: "one year dips to moderate",
			history: []historyEntry{
				{"2021-22", RiskHigh},
				{"2022-23", RiskModerate},
				{"2023-24", RiskCritical},
			},
			year: "2023-24",
			want: false,
		},
		{
			name: "window is anchored at the target year",
			history: []historyEntry{
				{"2020-21", RiskHigh},
				{"2021-22", RiskHigh},
				{"2022-23", RiskHigh},
				{"2023-24", RiskLow},
			},
			year: "2022-23",
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, persistentHighRisk(tt.history, tt.year))
		})
	}
}
