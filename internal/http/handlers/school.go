package handlers

import (
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "schoolsight/internal/db"
)

// SchoolSearch looks schools up by ID prefix or name substring.
func SchoolSearch(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		q := string(ctx.QueryArgs().Peek("q"))
		if q == "" {
			errResponse(ctx, fasthttp.StatusBadRequest, "missing q parameter")
			return
		}
		limit := parseLimit(ctx, 20, 100)

		var schools []dbpkg.School
		err := db.Where("school_id ILIKE ? OR school_name ILIKE ?", q+"%", "%"+q+"%").
			Order("school_id").
			Limit(limit).
			Find(&schools).Error
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to search schools")
			return
		}
		jsonResponse(ctx, map[string]any{"schools": schools})
	}
}

// SchoolOverview is the latest-year joined view of one school: facts,
// computed risk columns, priority placement and budget outcome.
func SchoolOverview(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		schoolID := pathString(ctx, "id")

		var school dbpkg.School
		if err := db.Where("school_id = ?", schoolID).First(&school).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				errResponse(ctx, fasthttp.StatusNotFound, "unknown school")
				return
			}
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query school")
			return
		}

		year, ok := resolveYear(ctx, db)
		if !ok {
			return
		}

		var infra dbpkg.InfrastructureRecord
		infraErr := db.Where("school_id = ? AND academic_year = ?", schoolID, year).
			First(&infra).Error
		if infraErr != nil && infraErr != gorm.ErrRecordNotFound {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query infrastructure")
			return
		}

		var metric dbpkg.YearlyMetric
		metricErr := db.Where("school_id = ? AND academic_year = ?", schoolID, year).
			First(&metric).Error
		if metricErr != nil && metricErr != gorm.ErrRecordNotFound {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query enrolment")
			return
		}

		var teacher dbpkg.TeacherMetric
		teacherErr := db.Where("school_id = ? AND academic_year = ?", schoolID, year).
			First(&teacher).Error
		if teacherErr != nil && teacherErr != gorm.ErrRecordNotFound {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query teachers")
			return
		}

		resp := map[string]any{
			"school":        school,
			"academic_year": year,
		}
		if infraErr == nil {
			resp["infrastructure"] = infra
		}
		if metricErr == nil {
			resp["enrolment"] = metric
		}
		if teacherErr == nil {
			resp["teachers"] = teacher
		}

		var priority dbpkg.PriorityIndex
		if err := db.Where("school_id = ? AND academic_year = ?", schoolID, year).
			First(&priority).Error; err == nil {
			resp["priority"] = priority
		}
		var budget dbpkg.BudgetSimulation
		if err := db.Where("school_id = ? AND academic_year = ?", schoolID, year).
			First(&budget).Error; err == nil {
			resp["budget"] = budget
		}

		jsonResponse(ctx, resp)
	}
}

// SchoolHistory returns one school's full derived series: trend rows plus
// the per-year fact and computed columns.
func SchoolHistory(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		schoolID := pathString(ctx, "id")

		var school dbpkg.School
		if err := db.Where("school_id = ?", schoolID).First(&school).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				errResponse(ctx, fasthttp.StatusNotFound, "unknown school")
				return
			}
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query school")
			return
		}

		var trend []dbpkg.RiskTrend
		err := db.Where("school_id = ?", schoolID).
			Order("academic_year").
			Find(&trend).Error
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query trend history")
			return
		}

		type historyRow struct {
			AcademicYear       string   `json:"academic_year"`
			TotalEnrolment     int      `json:"total_enrolment"`
			UsableClassRooms   int      `json:"usable_class_rooms"`
			RequiredClassRooms *int     `json:"required_class_rooms"`
			ClassroomGap       *int     `json:"classroom_gap"`
			TotalTeachers      int      `json:"total_teachers"`
			RequiredTeachers   *int     `json:"required_teachers"`
			TeacherGap         *int     `json:"teacher_gap"`
			RiskScore          *float64 `json:"risk_score"`
			RiskLevel          string   `json:"risk_level"`
		}
		var rows []historyRow
		err = db.Raw(`
			SELECT y.academic_year, y.total_enrolment,
			       COALESCE(i.usable_class_rooms, 0) AS usable_class_rooms,
			       i.required_class_rooms, i.classroom_gap,
			       COALESCE(t.total_teachers, 0) AS total_teachers,
			       t.required_teachers, t.teacher_gap,
			       i.risk_score, COALESCE(i.risk_level, '') AS risk_level
			FROM yearly_metrics y
			LEFT JOIN infrastructure_records i
			  ON i.school_id = y.school_id AND i.academic_year = y.academic_year
			LEFT JOIN teacher_metrics t
			  ON t.school_id = y.school_id AND t.academic_year = y.academic_year
			WHERE y.school_id = ?
			ORDER BY y.academic_year`, schoolID).Scan(&rows).Error
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query school history")
			return
		}

		jsonResponse(ctx, map[string]any{
			"school": school,
			"years":  rows,
			"trend":  trend,
		})
	}
}

// SchoolForecast returns both forecasters' horizon rows for one school.
func SchoolForecast(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		schoolID := pathString(ctx, "id")

		var wma []dbpkg.EnrolmentForecast
		err := db.Where("school_id = ?", schoolID).
			Order("years_ahead").
			Find(&wma).Error
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query forecast")
			return
		}
		if len(wma) == 0 {
			errResponse(ctx, fasthttp.StatusNotFound, "no forecast for school")
			return
		}

		var ml []dbpkg.MLEnrolmentForecast
		err = db.Where("school_id = ?", schoolID).
			Order("years_ahead").
			Find(&ml).Error
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query model forecast")
			return
		}

		jsonResponse(ctx, map[string]any{
			"school_id":        schoolID,
			"weighted_average": wma,
			"model":            ml,
		})
	}
}
