package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeClassroomRequirements(t *testing.T) {
	rows := []CapacityInput{
		{SchoolID: "S1", Category: "1", Enrolment: 900, Current: 25},
		{SchoolID: "S2", Category: "8", Enrolment: 410, Current: 15},
		{SchoolID: "S3", Category: "1", Enrolment: 60, Current: 0}, // missing infra row, zero capacity
		{SchoolID: "S4", Category: "4", Enrolment: 0, Current: 10},
	}
	got := ComputeClassroomRequirements(rows)
	require.Len(t, got, 4)

	assert.Equal(t, CapacityResult{SchoolID: "S1", Required: 30, Gap: 5}, got[0])
	assert.Equal(t, CapacityResult{SchoolID: "S2", Required: 11, Gap: 0}, got[1])
	assert.Equal(t, CapacityResult{SchoolID: "S3", Required: 2, Gap: 2}, got[2])
	assert.Equal(t, CapacityResult{SchoolID: "S4", Required: 0, Gap: 0}, got[3])
}

func TestComputeTeacherRequirements(t *testing.T) {
	rows := []CapacityInput{
		{SchoolID: "S1", Category: "1", Enrolment: 900, Current: 20},
		{SchoolID: "S2", Category: "4", Enrolment: 700, Current: 25},
		// Category 5 uses 35 for classrooms but 30 for teachers.
		{SchoolID: "S3", Category: "5", Enrolment: 300, Current: 10},
	}
	got := ComputeTeacherRequirements(rows)
	require.Len(t, got, 3)

	assert.Equal(t, CapacityResult{SchoolID: "S1", Required: 30, Gap: 10}, got[0])
	assert.Equal(t, CapacityResult{SchoolID: "S2", Required: 20, Gap: 0}, got[1])
	assert.Equal(t, CapacityResult{SchoolID: "S3", Required: 10, Gap: 0}, got[2])
}
