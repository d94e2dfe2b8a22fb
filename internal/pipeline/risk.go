package pipeline

import (
	"fmt"
	"math"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "schoolsight/internal/db"
)

// RiskInput is one school-year's computed shortfalls plus its enrolment and
// chronological predecessor enrolment (nil for the school's first observed
// year).
type RiskInput struct {
	SchoolID string

	RequiredClassrooms int
	ClassroomGap       int
	RequiredTeachers   int
	TeacherGap         int

	Enrolment     int
	PrevEnrolment *int
}

// RiskResult carries the four computed risk columns for one school-year.
type RiskResult struct {
	SchoolID string

	ClassroomDeficitRatio float64
	TeacherDeficitRatio   float64
	GrowthRate            float64
	Score                 float64
	Level                 string
}

// deficitRatio is min(gap/required, 1), or 0 when the requirement is zero
// or unknown.
func deficitRatio(gap, required int) float64 {
	if required <= 0 {
		return 0
	}
	return math.Min(float64(gap)/float64(required), 1.0)
}

// growthRate is (cur-prev)/prev via the school's chronological predecessor,
// 0 for a first observed year or a zero predecessor.
func growthRate(enrolment int, prev *int) float64 {
	if prev == nil || *prev == 0 {
		return 0
	}
	return float64(enrolment-*prev) / float64(*prev)
}

// ScoreRisk combines teacher shortfall, classroom shortfall and enrolment
// growth magnitude into the composite risk score and 4-level classification
// for every row.
func ScoreRisk(rows []RiskInput) []RiskResult {
	out := make([]RiskResult, 0, len(rows))
	for _, r := range rows {
		cdr := deficitRatio(r.ClassroomGap, r.RequiredClassrooms)
		tdr := deficitRatio(r.TeacherGap, r.RequiredTeachers)
		growth := growthRate(r.Enrolment, r.PrevEnrolment)
		scaled := math.Min(math.Abs(growth), growthCap)

		score := round4(teacherWeight*tdr + classroomWeight*cdr + growthWeight*scaled)
		out = append(out, RiskResult{
			SchoolID:              r.SchoolID,
			ClassroomDeficitRatio: cdr,
			TeacherDeficitRatio:   tdr,
			GrowthRate:            growth,
			Score:                 score,
			Level:                 RiskLevelFor(score),
		})
	}
	return out
}

// runRiskStage recomputes deficit ratios, growth rate, risk score and risk
// level on infrastructure records for one year. Requires the gap stages to
// have populated requirements for the year; rows they never touched (facts
// with no matching enrolment) are skipped.
func (r *Runner) runRiskStage(year string) (int64, error) {
	var infra []dbpkg.InfrastructureRecord
	if err := r.db.Where("academic_year = ?", year).Find(&infra).Error; err != nil {
		return 0, err
	}
	if len(infra) == 0 {
		return 0, fmt.Errorf("risk %s: %w", year, ErrNoFacts)
	}

	var teachers []dbpkg.TeacherMetric
	if err := r.db.Where("academic_year = ?", year).Find(&teachers).Error; err != nil {
		return 0, err
	}
	teacherBy := make(map[string]dbpkg.TeacherMetric, len(teachers))
	for _, tm := range teachers {
		// An orphan teacher row (facts with no enrolment that year) is never
		// touched by the gap stage; its school scores without a teacher
		// component rather than failing the year.
		if tm.RequiredTeachers == nil || tm.TeacherGap == nil {
			continue
		}
		teacherBy[tm.SchoolID] = tm
	}

	current, previous, err := r.loadEnrolmentWithPredecessor(year)
	if err != nil {
		return 0, err
	}

	inputs := make([]RiskInput, 0, len(infra))
	for _, rec := range infra {
		// Same skip for orphan infrastructure rows.
		if rec.RequiredClassRooms == nil || rec.ClassroomGap == nil {
			continue
		}
		in := RiskInput{
			SchoolID:           rec.SchoolID,
			RequiredClassrooms: *rec.RequiredClassRooms,
			ClassroomGap:       *rec.ClassroomGap,
			Enrolment:          current[rec.SchoolID],
			PrevEnrolment:      previous[rec.SchoolID],
		}
		if tm, ok := teacherBy[rec.SchoolID]; ok {
			in.RequiredTeachers = *tm.RequiredTeachers
			in.TeacherGap = *tm.TeacherGap
		}
		inputs = append(inputs, in)
	}
	if len(inputs) == 0 {
		// Every row lacks requirements, so the gap stage has not run for
		// this year at all. That is an ordering violation, not orphan data.
		return 0, fmt.Errorf("risk %s: no computed gaps: %w", year, ErrStageNotReady)
	}
	results := ScoreRisk(inputs)

	rows := make([]dbpkg.InfrastructureRecord, 0, len(results))
	for _, res := range results {
		cdr, tdr, growth, score := res.ClassroomDeficitRatio, res.TeacherDeficitRatio, res.GrowthRate, res.Score
		rows = append(rows, dbpkg.InfrastructureRecord{
			SchoolID:              res.SchoolID,
			AcademicYear:          year,
			ClassroomDeficitRatio: &cdr,
			TeacherDeficitRatio:   &tdr,
			EnrolmentGrowthRate:   &growth,
			RiskScore:             &score,
			RiskLevel:             res.Level,
		})
	}

	err = r.db.Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "school_id"}, {Name: "academic_year"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"classroom_deficit_ratio", "teacher_deficit_ratio",
				"enrolment_growth_rate", "risk_score", "risk_level",
			}),
		}).CreateInBatches(rows, 500).Error
	})
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

// loadEnrolmentWithPredecessor returns, for one year, each school's
// enrolment plus the enrolment of its previous observed year (nil when the
// target year opens the school's history).
func (r *Runner) loadEnrolmentWithPredecessor(year string) (map[string]int, map[string]*int, error) {
	var all []dbpkg.YearlyMetric
	if err := r.db.Order("school_id, academic_year").Find(&all).Error; err != nil {
		return nil, nil, err
	}

	current := make(map[string]int)
	previous := make(map[string]*int)
	for _, ym := range all {
		if ym.AcademicYear == year {
			current[ym.SchoolID] = ym.TotalEnrolment
			continue
		}
		if ym.AcademicYear < year {
			// Rows arrive in year order, so the last one seen before the
			// target year is the chronological predecessor.
			e := ym.TotalEnrolment
			previous[ym.SchoolID] = &e
		}
	}
	return current, previous, nil
}
