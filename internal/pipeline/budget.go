package pipeline

import (
	"fmt"
	"sort"

	"gorm.io/gorm"

	dbpkg "schoolsight/internal/db"
)

// BudgetInput is one school-year's outstanding gaps entering the allocation
// walk.
type BudgetInput struct {
	SchoolID     string
	RiskScore    float64
	RiskLevel    string
	ClassroomGap int
	TeacherGap   int
}

// BudgetAllocation is the allocation outcome for one school. Serialized
// as-is by the dry-run simulation endpoint.
type BudgetAllocation struct {
	SchoolID            string  `json:"school_id"`
	RiskScore           float64 `json:"risk_score"`
	RiskLevel           string  `json:"risk_level"`
	ClassroomGap        int     `json:"classroom_gap"`
	TeacherGap          int     `json:"teacher_gap"`
	AllocationPriority  int     `json:"allocation_priority"`
	ClassroomsAllocated int     `json:"classrooms_allocated"`
	TeachersAllocated   int     `json:"teachers_allocated"`
	ClassroomResolved   bool    `json:"classroom_resolved"`
	TeacherResolved     bool    `json:"teacher_resolved"`
}

// riskTier orders risk levels for allocation: CRITICAL schools are funded
// first, unknown labels last.
func riskTier(level string) int {
	switch level {
	case RiskCritical:
		return 1
	case RiskHigh:
		return 2
	case RiskModerate:
		return 3
	case RiskLow:
		return 4
	default:
		return 5
	}
}

// PrioritizeAllocation orders schools for funding: risk tier first, then
// risk score descending, then school ID for a stable total order. Assigns
// 1-based allocation priorities.
func PrioritizeAllocation(rows []BudgetInput) []BudgetAllocation {
	sorted := make([]BudgetInput, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool {
		ti, tj := riskTier(sorted[i].RiskLevel), riskTier(sorted[j].RiskLevel)
		if ti != tj {
			return ti < tj
		}
		if sorted[i].RiskScore != sorted[j].RiskScore {
			return sorted[i].RiskScore > sorted[j].RiskScore
		}
		return sorted[i].SchoolID < sorted[j].SchoolID
	})

	out := make([]BudgetAllocation, 0, len(sorted))
	for i, row := range sorted {
		out = append(out, BudgetAllocation{
			SchoolID:           row.SchoolID,
			RiskScore:          row.RiskScore,
			RiskLevel:          row.RiskLevel,
			ClassroomGap:       row.ClassroomGap,
			TeacherGap:         row.TeacherGap,
			AllocationPriority: i + 1,
		})
	}
	return out
}

// AllocateResources walks the prioritized list twice, once per resource,
// spending each capacity pool greedily: a school gets its full gap while the
// pool holds, the straddling school gets the remaining headroom, everyone
// after gets nothing. Mutates the slice in place.
func AllocateResources(allocations []BudgetAllocation, maxClassrooms, maxTeachers int) {
	var usedClassrooms, usedTeachers int
	for i := range allocations {
		a := &allocations[i]

		switch {
		case usedClassrooms+a.ClassroomGap <= maxClassrooms:
			a.ClassroomsAllocated = a.ClassroomGap
		case maxClassrooms-usedClassrooms > 0:
			a.ClassroomsAllocated = maxClassrooms - usedClassrooms
		}
		usedClassrooms += a.ClassroomsAllocated
		a.ClassroomResolved = a.ClassroomsAllocated >= a.ClassroomGap

		switch {
		case usedTeachers+a.TeacherGap <= maxTeachers:
			a.TeachersAllocated = a.TeacherGap
		case maxTeachers-usedTeachers > 0:
			a.TeachersAllocated = maxTeachers - usedTeachers
		}
		usedTeachers += a.TeachersAllocated
		a.TeacherResolved = a.TeachersAllocated >= a.TeacherGap
	}
}

// MaxClassroomsFor converts a monetary budget into a classroom construction
// capacity.
func MaxClassroomsFor(budget, costPerClassroom int64) int {
	if costPerClassroom <= 0 {
		return 0
	}
	return int(budget / costPerClassroom)
}

// SimulateBudget runs the full prioritize-then-allocate walk without
// touching storage. Backs both the persisted stage and the dry-run endpoint.
func SimulateBudget(rows []BudgetInput, budget, costPerClassroom int64, teacherPosts int) []BudgetAllocation {
	allocations := PrioritizeAllocation(rows)
	AllocateResources(allocations, MaxClassroomsFor(budget, costPerClassroom), teacherPosts)
	return allocations
}

// runBudgetStage rebuilds the budget simulation for one year under the
// configured budget envelope.
func (r *Runner) runBudgetStage(year string) (int64, error) {
	inputs, err := r.loadBudgetInputs(year)
	if err != nil {
		return 0, err
	}

	allocations := SimulateBudget(inputs,
		r.params.ClassroomBudget, r.params.CostPerClassroom, r.params.TeacherPosts)

	rows := make([]dbpkg.BudgetSimulation, 0, len(allocations))
	for _, a := range allocations {
		rows = append(rows, dbpkg.BudgetSimulation{
			SchoolID:            a.SchoolID,
			AcademicYear:        year,
			RiskLevel:           a.RiskLevel,
			ClassroomGap:        a.ClassroomGap,
			TeacherGap:          a.TeacherGap,
			ClassroomsAllocated: a.ClassroomsAllocated,
			TeachersAllocated:   a.TeachersAllocated,
			ClassroomResolved:   a.ClassroomResolved,
			TeacherResolved:     a.TeacherResolved,
			AllocationPriority:  a.AllocationPriority,
		})
	}

	err = r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("academic_year = ?", year).
			Delete(&dbpkg.BudgetSimulation{}).Error; err != nil {
			return err
		}
		return tx.CreateInBatches(rows, 500).Error
	})
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

// loadBudgetInputs assembles scored gaps for one year. Fails only when no
// row in the year carries a score, meaning the upstream stages have not run.
func (r *Runner) loadBudgetInputs(year string) ([]BudgetInput, error) {
	var infra []dbpkg.InfrastructureRecord
	if err := r.db.Where("academic_year = ?", year).Find(&infra).Error; err != nil {
		return nil, err
	}
	if len(infra) == 0 {
		return nil, fmt.Errorf("budget %s: %w", year, ErrNoFacts)
	}

	var teachers []dbpkg.TeacherMetric
	if err := r.db.Where("academic_year = ?", year).Find(&teachers).Error; err != nil {
		return nil, err
	}
	teacherGaps := make(map[string]int, len(teachers))
	for _, tm := range teachers {
		if tm.TeacherGap != nil {
			teacherGaps[tm.SchoolID] = *tm.TeacherGap
		}
	}

	inputs := make([]BudgetInput, 0, len(infra))
	for _, rec := range infra {
		// Orphan rows without computed scores stay outside the allocation
		// walk.
		if rec.RiskScore == nil || rec.ClassroomGap == nil {
			continue
		}
		inputs = append(inputs, BudgetInput{
			SchoolID:     rec.SchoolID,
			RiskScore:    *rec.RiskScore,
			RiskLevel:    rec.RiskLevel,
			ClassroomGap: *rec.ClassroomGap,
			TeacherGap:   teacherGaps[rec.SchoolID],
		})
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("budget %s: no risk scores: %w", year, ErrStageNotReady)
	}
	return inputs, nil
}
