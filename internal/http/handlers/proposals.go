package handlers

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "schoolsight/internal/db"
	"schoolsight/internal/pipeline"
)

type proposalRequest struct {
	SchoolID            string `json:"school_id"`
	AcademicYear        string `json:"academic_year"`
	ClassroomsRequested int    `json:"classrooms_requested"`
	TeachersRequested   int    `json:"teachers_requested"`
	Justification       string `json:"justification"`
	SubmittedBy         string `json:"submitted_by"`
}

// SubmitProposal records a resource request and validates it immediately
// against the computed gaps for its school-year. When the gap stages have
// not covered that year yet, the proposal is stored PENDING and picked up by
// the next pipeline run.
func SubmitProposal(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var req proposalRequest
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
			return
		}
		req.SchoolID = strings.TrimSpace(req.SchoolID)
		req.AcademicYear = strings.TrimSpace(req.AcademicYear)
		if req.SchoolID == "" || req.AcademicYear == "" {
			errResponse(ctx, fasthttp.StatusBadRequest, "school_id and academic_year are required")
			return
		}
		if req.ClassroomsRequested < 0 || req.TeachersRequested < 0 {
			errResponse(ctx, fasthttp.StatusBadRequest, "requested quantities must not be negative")
			return
		}

		now := time.Now().UTC()
		proposal := dbpkg.SchoolProposal{
			SchoolID:            req.SchoolID,
			AcademicYear:        req.AcademicYear,
			ClassroomsRequested: req.ClassroomsRequested,
			TeachersRequested:   req.TeachersRequested,
			Justification:       req.Justification,
			SubmittedBy:         req.SubmittedBy,
			SubmittedAt:         now,
			DecisionStatus:      pipeline.ProposalPending,
		}

		var school dbpkg.School
		err := db.Where("school_id = ?", req.SchoolID).First(&school).Error
		switch {
		case err == gorm.ErrRecordNotFound:
			// Unknown school is a final verdict, not a transient state.
			proposal.DecisionStatus = pipeline.ProposalRejected
			proposal.ReasonCode = pipeline.ReasonSchoolNotFound
			proposal.ConfidenceScore = 1.0
			proposal.ValidatedAt = now
		case err != nil:
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query school")
			return
		default:
			crGap, trGap, ready, err := lookupGaps(db, req.SchoolID, req.AcademicYear)
			if err != nil {
				errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query computed gaps")
				return
			}
			if ready {
				decision := pipeline.ValidateProposal(
					req.ClassroomsRequested, req.TeachersRequested, crGap, trGap)
				proposal.ActualClassroomGap = crGap
				proposal.ActualTeacherGap = trGap
				proposal.ClassroomRatio = pipeline.FiniteRatio(decision.ClassroomRatio)
				proposal.TeacherRatio = pipeline.FiniteRatio(decision.TeacherRatio)
				proposal.DecisionStatus = decision.Status
				proposal.ReasonCode = decision.ReasonCode
				proposal.ConfidenceScore = decision.Confidence
				proposal.ValidatedAt = now
			}
		}

		if err := db.Create(&proposal).Error; err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to persist proposal")
			return
		}

		ctx.SetStatusCode(fasthttp.StatusCreated)
		jsonResponse(ctx, map[string]any{"proposal": proposal})
	}
}

// lookupGaps reads the computed gaps for one school-year. ready is false
// when the gap stages have not produced them yet.
func lookupGaps(db *gorm.DB, schoolID, year string) (crGap, trGap int, ready bool, err error) {
	var infra dbpkg.InfrastructureRecord
	err = db.Where("school_id = ? AND academic_year = ?", schoolID, year).
		First(&infra).Error
	if err == gorm.ErrRecordNotFound {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, err
	}
	if infra.ClassroomGap == nil {
		return 0, 0, false, nil
	}
	var tm dbpkg.TeacherMetric
	err = db.Where("school_id = ? AND academic_year = ?", schoolID, year).
		First(&tm).Error
	if err == gorm.ErrRecordNotFound {
		// No teacher facts for the year: validated against a zero teacher
		// gap, matching the batch validator.
		return *infra.ClassroomGap, 0, true, nil
	}
	if err != nil {
		return 0, 0, false, err
	}
	if tm.TeacherGap == nil {
		return 0, 0, false, nil
	}
	return *infra.ClassroomGap, *tm.TeacherGap, true, nil
}

// SchoolProposals lists one school's submission history, newest first.
func SchoolProposals(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		schoolID := pathString(ctx, "id")

		var proposals []dbpkg.SchoolProposal
		err := db.Where("school_id = ?", schoolID).
			Order("submitted_at DESC").
			Find(&proposals).Error
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query proposals")
			return
		}
		jsonResponse(ctx, map[string]any{"school_id": schoolID, "proposals": proposals})
	}
}
