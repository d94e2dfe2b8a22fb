package pipeline

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"

	dbpkg "schoolsight/internal/db"
)

// Proposal decision statuses.
const (
	ProposalPending  = "PENDING"
	ProposalAccepted = "ACCEPTED"
	ProposalFlagged  = "FLAGGED"
	ProposalRejected = "REJECTED"
)

// Proposal reason codes.
const (
	ReasonNoDeficit         = "NO_DEFICIT"
	ReasonClassroomOver     = "CLASSROOM_OVER_REQUEST"
	ReasonTeacherOver       = "TEACHER_OVER_REQUEST"
	ReasonClassroomModerate = "CLASSROOM_MODERATE_OVER"
	ReasonTeacherModerate   = "TEACHER_MODERATE_OVER"
	ReasonClassroomUnder    = "CLASSROOM_UNDER_REQUEST"
	ReasonTeacherUnder      = "TEACHER_UNDER_REQUEST"
	ReasonNoRequest         = "NO_REQUEST"
	ReasonWithinTolerance   = "WITHIN_TOLERANCE"
	ReasonSchoolNotFound    = "SCHOOL_NOT_FOUND"
)

// Request-to-gap tolerance bands.
const (
	overRequestRatio  = 1.5
	moderateOverRatio = 1.2
	underRequestRatio = 0.5
)

// ProposalDecision is the verdict on one resource request.
type ProposalDecision struct {
	Status         string
	ReasonCode     string
	Confidence     float64
	ClassroomRatio float64
	TeacherRatio   float64
}

// requestRatio relates a requested quantity to the actual shortfall. A
// request against a zero gap is infinitely oversized.
func requestRatio(requested, gap int) float64 {
	if gap > 0 {
		return float64(requested) / float64(gap)
	}
	if requested > 0 {
		return math.Inf(1)
	}
	return 0
}

// FiniteRatio collapses the infinite no-gap ratio to zero for storage.
func FiniteRatio(ratio float64) float64 {
	if math.IsInf(ratio, 0) {
		return 0
	}
	return ratio
}

// ValidateProposal scores a resource request against the school's actual
// computed gaps. Checks run in severity order and the first match wins;
// classroom findings are reported before teacher findings at equal severity.
func ValidateProposal(classroomsReq, teachersReq, classroomGap, teacherGap int) ProposalDecision {
	cr := requestRatio(classroomsReq, classroomGap)
	tr := requestRatio(teachersReq, teacherGap)
	decision := ProposalDecision{ClassroomRatio: cr, TeacherRatio: tr}

	switch {
	case classroomGap == 0 && teacherGap == 0 && (classroomsReq > 0 || teachersReq > 0):
		decision.Status = ProposalRejected
		decision.ReasonCode = ReasonNoDeficit
		decision.Confidence = 0.1

	case cr > overRequestRatio:
		decision.Status = ProposalRejected
		decision.ReasonCode = ReasonClassroomOver
		decision.Confidence = 0.2
	case tr > overRequestRatio:
		decision.Status = ProposalRejected
		decision.ReasonCode = ReasonTeacherOver
		decision.Confidence = 0.2

	case cr >= moderateOverRatio:
		decision.Status = ProposalFlagged
		decision.ReasonCode = ReasonClassroomModerate
		decision.Confidence = 0.5
	case tr >= moderateOverRatio:
		decision.Status = ProposalFlagged
		decision.ReasonCode = ReasonTeacherModerate
		decision.Confidence = 0.5

	case classroomGap > 0 && cr < underRequestRatio:
		decision.Status = ProposalFlagged
		decision.ReasonCode = ReasonClassroomUnder
		decision.Confidence = 0.6
	case teacherGap > 0 && tr < underRequestRatio:
		decision.Status = ProposalFlagged
		decision.ReasonCode = ReasonTeacherUnder
		decision.Confidence = 0.6

	case classroomsReq == 0 && teachersReq == 0 && classroomGap == 0 && teacherGap == 0:
		decision.Status = ProposalAccepted
		decision.ReasonCode = ReasonNoRequest
		decision.Confidence = 1.0

	default:
		decision.Status = ProposalAccepted
		decision.ReasonCode = ReasonWithinTolerance
		conf := 1 - 0.5*math.Abs(cr-1) - 0.5*math.Abs(tr-1)
		decision.Confidence = round3(math.Max(0, math.Min(1, conf)))
	}
	return decision
}

// runProposalStage validates submissions still awaiting a verdict against
// the current computed gaps. Already-decided proposals keep the verdict they
// got at submission time.
func (r *Runner) runProposalStage() (int64, error) {
	var pending []dbpkg.SchoolProposal
	if err := r.db.Where("decision_status = ? OR decision_status = ''", ProposalPending).
		Find(&pending).Error; err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	var written int64
	err := r.db.Transaction(func(tx *gorm.DB) error {
		for i := range pending {
			p := &pending[i]
			crGap, trGap, err := r.actualGaps(tx, p.SchoolID, p.AcademicYear)
			if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, ErrStageNotReady) {
				// No facts or no computed gaps for that school-year yet:
				// leave the proposal pending for a later run.
				continue
			}
			if err != nil {
				return fmt.Errorf("proposal %d: %w", p.ID, err)
			}

			decision := ValidateProposal(p.ClassroomsRequested, p.TeachersRequested, crGap, trGap)
			p.ActualClassroomGap = crGap
			p.ActualTeacherGap = trGap
			p.ClassroomRatio = FiniteRatio(decision.ClassroomRatio)
			p.TeacherRatio = FiniteRatio(decision.TeacherRatio)
			p.DecisionStatus = decision.Status
			p.ReasonCode = decision.ReasonCode
			p.ConfidenceScore = decision.Confidence
			p.ValidatedAt = time.Now().UTC()

			if err := tx.Save(p).Error; err != nil {
				return err
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// actualGaps reads the computed shortfalls for one school-year, failing
// with ErrStageNotReady when the gap stages have not run for that year.
func (r *Runner) actualGaps(tx *gorm.DB, schoolID, year string) (int, int, error) {
	var infra dbpkg.InfrastructureRecord
	err := tx.Where("school_id = ? AND academic_year = ?", schoolID, year).
		First(&infra).Error
	if err != nil {
		return 0, 0, fmt.Errorf("infrastructure %s %s: %w", schoolID, year, err)
	}
	if infra.ClassroomGap == nil {
		return 0, 0, fmt.Errorf("gaps %s %s: %w", schoolID, year, ErrStageNotReady)
	}

	var tm dbpkg.TeacherMetric
	err = tx.Where("school_id = ? AND academic_year = ?", schoolID, year).
		First(&tm).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// No teacher facts for this school-year: validated against a zero
		// teacher gap.
		return *infra.ClassroomGap, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("teacher metric %s %s: %w", schoolID, year, err)
	}
	if tm.TeacherGap == nil {
		return 0, 0, fmt.Errorf("gaps %s %s: %w", schoolID, year, ErrStageNotReady)
	}
	return *infra.ClassroomGap, *tm.TeacherGap, nil
}
