package pipeline

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateProposal(t *testing.T) {
	tests := []struct {
		name                       string
		classroomsReq, teachersReq int
		classroomGap, teacherGap   int
		wantStatus                 string
		wantReason                 string
		wantConfidence             float64
	}{
		{
			name:          "request against no deficit",
			classroomsReq: 3, teachersReq: 0,
			classroomGap: 0, teacherGap: 0,
			wantStatus: ProposalRejected, wantReason: ReasonNoDeficit, wantConfidence: 0.1,
		},
		{
			name:          "classroom over-request",
			classroomsReq: 8, teachersReq: 0,
			classroomGap: 5, teacherGap: 2,
			wantStatus: ProposalRejected, wantReason: ReasonClassroomOver, wantConfidence: 0.2,
		},
		{
			name:          "teacher over-request",
			classroomsReq: 5, teachersReq: 9,
			classroomGap: 5, teacherGap: 4,
			wantStatus: ProposalRejected, wantReason: ReasonTeacherOver, wantConfidence: 0.2,
		},
		{
			name:          "classroom reported before teacher at equal severity",
			classroomsReq: 10, teachersReq: 10,
			classroomGap: 5, teacherGap: 5,
			wantStatus: ProposalRejected, wantReason: ReasonClassroomOver, wantConfidence: 0.2,
		},
		{
			name:          "moderate over band is inclusive at 1.2",
			classroomsReq: 6, teachersReq: 0,
			classroomGap: 5, teacherGap: 0,
			wantStatus: ProposalFlagged, wantReason: ReasonClassroomModerate, wantConfidence: 0.5,
		},
		{
			name:          "under-request",
			classroomsReq: 2, teachersReq: 4,
			classroomGap: 5, teacherGap: 4,
			wantStatus: ProposalFlagged, wantReason: ReasonClassroomUnder, wantConfidence: 0.6,
		},
		{
			name:       "nothing requested nothing owed",
			wantStatus: ProposalAccepted, wantReason: ReasonNoRequest, wantConfidence: 1.0,
		},
		{
			name:          "exact match",
			classroomsReq: 5, teachersReq: 4,
			classroomGap: 5, teacherGap: 4,
			wantStatus: ProposalAccepted, wantReason: ReasonWithinTolerance, wantConfidence: 1.0,
		},
		{
			name:          "within tolerance with slight drift",
			classroomsReq: 11, teachersReq: 9,
			classroomGap: 10, teacherGap: 10,
			wantStatus: ProposalAccepted, wantReason: ReasonWithinTolerance, wantConfidence: 0.9,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateProposal(tt.classroomsReq, tt.teachersReq, tt.classroomGap, tt.teacherGap)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantReason, got.ReasonCode)
			assert.Equal(t, tt.wantConfidence, got.Confidence)
		})
	}
}

func TestValidateProposalOverRequestBoundary(t *testing.T) {
	// Exactly 1.5x is tolerated as moderate, not rejected.
	got := ValidateProposal(6, 0, 4, 0)
	assert.Equal(t, ProposalFlagged, got.Status)
	assert.Equal(t, ReasonClassroomModerate, got.ReasonCode)
}

func TestRequestRatio(t *testing.T) {
	assert.Equal(t, 1.2, requestRatio(6, 5))
	assert.Equal(t, 0.0, requestRatio(0, 0))
	assert.True(t, math.IsInf(requestRatio(3, 0), 1),
		"request against a zero gap is infinitely oversized")
}

func TestFiniteRatio(t *testing.T) {
	assert.Equal(t, 1.2, FiniteRatio(1.2))
	assert.Equal(t, 0.0, FiniteRatio(math.Inf(1)),
		"infinite ratios are stored as zero")
}
