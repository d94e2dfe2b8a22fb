package handlers

import (
	"encoding/json"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"schoolsight/internal/config"
	dbpkg "schoolsight/internal/db"
	"schoolsight/internal/pipeline"
)

type simulateRequest struct {
	AcademicYear     string `json:"academic_year"`
	ClassroomBudget  *int64 `json:"classroom_budget"`
	CostPerClassroom *int64 `json:"cost_per_classroom"`
	TeacherPosts     *int   `json:"teacher_posts"`
}

// SimulateBudget runs the allocation walk under caller-supplied budget
// parameters without persisting anything. Omitted parameters fall back to
// the configured defaults, so the response with no overrides mirrors the
// committed simulation.
func SimulateBudget(db *gorm.DB, cfg *config.Config) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var req simulateRequest
		if len(ctx.PostBody()) > 0 {
			if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
				errResponse(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
				return
			}
		}

		year := req.AcademicYear
		if year == "" {
			var ok bool
			year, ok = resolveYear(ctx, db)
			if !ok {
				return
			}
		}

		budget := cfg.ClassroomBudget
		if req.ClassroomBudget != nil {
			budget = *req.ClassroomBudget
		}
		costPerClassroom := cfg.CostPerClassroom
		if req.CostPerClassroom != nil {
			costPerClassroom = *req.CostPerClassroom
		}
		teacherPosts := cfg.TeacherPosts
		if req.TeacherPosts != nil {
			teacherPosts = *req.TeacherPosts
		}
		if budget < 0 || costPerClassroom < 0 || teacherPosts < 0 {
			errResponse(ctx, fasthttp.StatusBadRequest, "budget parameters must not be negative")
			return
		}

		inputs, err := loadSimulationInputs(db, year)
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to load scored gaps")
			return
		}
		if len(inputs) == 0 {
			errResponse(ctx, fasthttp.StatusNotFound, "no scored schools for academic year")
			return
		}

		allocations := pipeline.SimulateBudget(inputs, budget, costPerClassroom, teacherPosts)

		var classroomsFunded, teachersFunded, fullyResolved int
		for _, a := range allocations {
			classroomsFunded += a.ClassroomsAllocated
			teachersFunded += a.TeachersAllocated
			if a.ClassroomResolved && a.TeacherResolved {
				fullyResolved++
			}
		}

		jsonResponse(ctx, map[string]any{
			"academic_year": year,
			"params": map[string]any{
				"classroom_budget":   budget,
				"cost_per_classroom": costPerClassroom,
				"teacher_posts":      teacherPosts,
				"max_classrooms":     pipeline.MaxClassroomsFor(budget, costPerClassroom),
			},
			"summary": map[string]any{
				"schools":           len(allocations),
				"classrooms_funded": classroomsFunded,
				"teachers_funded":   teachersFunded,
				"fully_resolved":    fullyResolved,
			},
			"allocations": allocations,
		})
	}
}

// loadSimulationInputs reads scored gaps for one year, skipping schools the
// risk stage has not covered.
func loadSimulationInputs(db *gorm.DB, year string) ([]pipeline.BudgetInput, error) {
	var infra []dbpkg.InfrastructureRecord
	if err := db.Where("academic_year = ? AND risk_score IS NOT NULL", year).
		Find(&infra).Error; err != nil {
		return nil, err
	}

	var teachers []dbpkg.TeacherMetric
	if err := db.Where("academic_year = ?", year).Find(&teachers).Error; err != nil {
		return nil, err
	}
	teacherGaps := make(map[string]int, len(teachers))
	for _, tm := range teachers {
		if tm.TeacherGap != nil {
			teacherGaps[tm.SchoolID] = *tm.TeacherGap
		}
	}

	inputs := make([]pipeline.BudgetInput, 0, len(infra))
	for _, rec := range infra {
		var crGap int
		if rec.ClassroomGap != nil {
			crGap = *rec.ClassroomGap
		}
		inputs = append(inputs, pipeline.BudgetInput{
			SchoolID:     rec.SchoolID,
			RiskScore:    *rec.RiskScore,
			RiskLevel:    rec.RiskLevel,
			ClassroomGap: crGap,
			TeacherGap:   teacherGaps[rec.SchoolID],
		})
	}
	return inputs, nil
}
