package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateDistricts(t *testing.T) {
	aggregates := AggregateDistricts([]DistrictObservation{
		{District: "North", AcademicYear: "2023-24", RiskScore: 0.60, RiskLevel: RiskHigh,
			ClassroomGap: 5, TeacherGap: 8, Enrolment: 800, ConditionScore: 0.4},
		{District: "North", AcademicYear: "2023-24", RiskScore: 0.20, RiskLevel: RiskLow,
			ClassroomGap: 0, TeacherGap: 1, Enrolment: 400, ConditionScore: 0.8},
		{District: "South", AcademicYear: "2023-24", RiskScore: 0.10, RiskLevel: RiskLow,
			ClassroomGap: 0, TeacherGap: 0, Enrolment: 300, ConditionScore: 0.9},
	})
	require.Len(t, aggregates, 2)

	north := aggregates[0]
	assert.Equal(t, "North", north.District)
	assert.Equal(t, 2, north.TotalSchools)
	assert.Equal(t, 0.4, north.AvgRiskScore)
	assert.Equal(t, 50.0, north.PctHighCritical)
	assert.Equal(t, 5, north.TotalClassroomDeficit)
	assert.Equal(t, 9, north.TotalTeacherDeficit)
	assert.Equal(t, int64(1200), north.TotalEnrolment)
	assert.Equal(t, 0.6, north.AvgClassroomCondition)
	assert.Equal(t, GradeC, north.ComplianceGrade)

	south := aggregates[1]
	assert.Equal(t, GradeA, south.ComplianceGrade)
	assert.Equal(t, 0.0, south.PctHighCritical)
}

func TestComplianceGradeBoundaries(t *testing.T) {
	tests := []struct {
		avg  float64
		want string
	}{
		{0.15, GradeA},
		{0.1501, GradeB},
		{0.30, GradeB},
		{0.3001, GradeC},
		{0.50, GradeC},
		{0.75, GradeD},
		{0.7501, GradeF},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, complianceGrade(tt.avg), "avg %v", tt.avg)
	}
}

func TestFinalizeDistricts(t *testing.T) {
	aggregates := []DistrictAggregate{
		{District: "North", AcademicYear: "2022-23", AvgRiskScore: 0.50},
		{District: "South", AcademicYear: "2022-23", AvgRiskScore: 0.30},
		{District: "North", AcademicYear: "2023-24", AvgRiskScore: 0.40},
		{District: "South", AcademicYear: "2023-24", AvgRiskScore: 0.45},
		{District: "West", AcademicYear: "2023-24", AvgRiskScore: 0.45},
	}
	ranks, yoy := FinalizeDistricts(aggregates)
	require.Len(t, ranks, 5)
	require.Len(t, yoy, 5)

	// 2022-23: North is riskier, ranks first.
	assert.Equal(t, 1, ranks[0])
	assert.Equal(t, 2, ranks[1])

	// 2023-24: South and West tie ahead of North.
	assert.Equal(t, 3, ranks[2])
	assert.Equal(t, 1, ranks[3])
	assert.Equal(t, 1, ranks[4])

	// First observed year has no delta; later years measure against the
	// district's previous observed year.
	assert.Nil(t, yoy[0])
	assert.Nil(t, yoy[1])
	require.NotNil(t, yoy[2])
	assert.InDelta(t, -0.10, *yoy[2], 1e-9)
	require.NotNil(t, yoy[3])
	assert.InDelta(t, 0.15, *yoy[3], 1e-9)
	assert.Nil(t, yoy[4], "West first appears in 2023-24")
}
