package pipeline

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "schoolsight/internal/db"
)

// CapacityInput is one school-year's enrolment against its current capacity
// (usable classrooms or teacher headcount). Current is zero when the
// counterpart fact row is missing, matching left-join semantics.
type CapacityInput struct {
	SchoolID  string
	Category  string
	Enrolment int
	Current   int
}

// CapacityResult carries the computed requirement and shortfall for one
// school-year.
type CapacityResult struct {
	SchoolID string
	Required int
	Gap      int
}

// ComputeClassroomRequirements derives required classrooms and the
// classroom shortfall for every row using the classroom norms.
func ComputeClassroomRequirements(rows []CapacityInput) []CapacityResult {
	out := make([]CapacityResult, 0, len(rows))
	for _, r := range rows {
		required := RequiredCapacity(r.Enrolment, ClassroomNorm(r.Category))
		out = append(out, CapacityResult{
			SchoolID: r.SchoolID,
			Required: required,
			Gap:      Shortfall(required, r.Current),
		})
	}
	return out
}

// ComputeTeacherRequirements derives required teachers and the teacher
// shortfall for every row using the PTR norms.
func ComputeTeacherRequirements(rows []CapacityInput) []CapacityResult {
	out := make([]CapacityResult, 0, len(rows))
	for _, r := range rows {
		required := RequiredCapacity(r.Enrolment, PTRNorm(r.Category))
		out = append(out, CapacityResult{
			SchoolID: r.SchoolID,
			Required: required,
			Gap:      Shortfall(required, r.Current),
		})
	}
	return out
}

// runClassroomGapStage recomputes required_class_rooms and classroom_gap on
// infrastructure records for one year. A school-year with enrolment but no
// infrastructure row gets a zero-capacity row created so downstream stages
// see it.
func (r *Runner) runClassroomGapStage(year string) (int64, error) {
	enrolments, categories, err := r.loadEnrolments(year)
	if err != nil {
		return 0, err
	}
	if len(enrolments) == 0 {
		return 0, fmt.Errorf("classroom gap %s: %w", year, ErrNoFacts)
	}

	var infra []dbpkg.InfrastructureRecord
	if err := r.db.Where("academic_year = ?", year).Find(&infra).Error; err != nil {
		return 0, err
	}
	usable := make(map[string]int, len(infra))
	for _, rec := range infra {
		usable[rec.SchoolID] = rec.UsableClassRooms
	}

	inputs := make([]CapacityInput, 0, len(enrolments))
	for _, ym := range enrolments {
		inputs = append(inputs, CapacityInput{
			SchoolID:  ym.SchoolID,
			Category:  categories[ym.SchoolID],
			Enrolment: ym.TotalEnrolment,
			Current:   usable[ym.SchoolID],
		})
	}
	results := ComputeClassroomRequirements(inputs)

	rows := make([]dbpkg.InfrastructureRecord, 0, len(results))
	for _, res := range results {
		required, gap := res.Required, res.Gap
		rows = append(rows, dbpkg.InfrastructureRecord{
			SchoolID:           res.SchoolID,
			AcademicYear:       year,
			RequiredClassRooms: &required,
			ClassroomGap:       &gap,
		})
	}

	err = r.db.Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "school_id"}, {Name: "academic_year"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"required_class_rooms", "classroom_gap",
			}),
		}).CreateInBatches(rows, 500).Error
	})
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

// runTeacherGapStage recomputes required_teachers and teacher_gap on
// teacher metrics for one year, with the same left-join semantics as the
// classroom stage.
func (r *Runner) runTeacherGapStage(year string) (int64, error) {
	enrolments, categories, err := r.loadEnrolments(year)
	if err != nil {
		return 0, err
	}
	if len(enrolments) == 0 {
		return 0, fmt.Errorf("teacher gap %s: %w", year, ErrNoFacts)
	}

	var teachers []dbpkg.TeacherMetric
	if err := r.db.Where("academic_year = ?", year).Find(&teachers).Error; err != nil {
		return 0, err
	}
	headcount := make(map[string]int, len(teachers))
	for _, tm := range teachers {
		headcount[tm.SchoolID] = tm.TotalTeachers
	}

	inputs := make([]CapacityInput, 0, len(enrolments))
	for _, ym := range enrolments {
		inputs = append(inputs, CapacityInput{
			SchoolID:  ym.SchoolID,
			Category:  categories[ym.SchoolID],
			Enrolment: ym.TotalEnrolment,
			Current:   headcount[ym.SchoolID],
		})
	}
	results := ComputeTeacherRequirements(inputs)

	rows := make([]dbpkg.TeacherMetric, 0, len(results))
	for _, res := range results {
		required, gap := res.Required, res.Gap
		rows = append(rows, dbpkg.TeacherMetric{
			SchoolID:         res.SchoolID,
			AcademicYear:     year,
			RequiredTeachers: &required,
			TeacherGap:       &gap,
		})
	}

	err = r.db.Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "school_id"}, {Name: "academic_year"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"required_teachers", "teacher_gap",
			}),
		}).CreateInBatches(rows, 500).Error
	})
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

// loadEnrolments returns the enrolment facts for one year plus a
// school -> category lookup.
func (r *Runner) loadEnrolments(year string) ([]dbpkg.YearlyMetric, map[string]string, error) {
	var enrolments []dbpkg.YearlyMetric
	if err := r.db.Where("academic_year = ?", year).Find(&enrolments).Error; err != nil {
		return nil, nil, err
	}

	var schools []dbpkg.School
	if err := r.db.Select("school_id", "category", "district").Find(&schools).Error; err != nil {
		return nil, nil, err
	}
	categories := make(map[string]string, len(schools))
	for _, s := range schools {
		categories[s.SchoolID] = s.Category
	}
	return enrolments, categories, nil
}
