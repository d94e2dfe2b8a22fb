package handlers

import (
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "schoolsight/internal/db"
	"schoolsight/internal/pipeline"
)

// StateYears lists the academic years with ingested facts.
func StateYears(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		years, err := dbpkg.AcademicYears(db)
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query academic years")
			return
		}
		latest := ""
		if len(years) > 0 {
			latest = years[len(years)-1]
		}
		jsonResponse(ctx, map[string]any{"years": years, "latest": latest})
	}
}

type riskLevelCount struct {
	RiskLevel string `json:"risk_level"`
	Count     int64  `json:"count"`
}

// StateOverview is the state-wide KPI view for one year: headline totals,
// risk level distribution, budget resolution summary and the district
// scorecards.
func StateOverview(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		year, ok := resolveYear(ctx, db)
		if !ok {
			return
		}

		type kpiRow struct {
			TotalSchools          int64   `json:"total_schools"`
			TotalClassroomDeficit int64   `json:"total_classroom_deficit"`
			AvgRiskScore          float64 `json:"avg_risk_score"`
		}
		var kpis kpiRow
		err := db.Model(&dbpkg.InfrastructureRecord{}).
			Where("academic_year = ?", year).
			Select("COUNT(*) AS total_schools, COALESCE(SUM(classroom_gap), 0) AS total_classroom_deficit, COALESCE(AVG(risk_score), 0) AS avg_risk_score").
			Scan(&kpis).Error
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query state KPIs")
			return
		}

		var totalEnrolment int64
		err = db.Model(&dbpkg.YearlyMetric{}).
			Where("academic_year = ?", year).
			Select("COALESCE(SUM(total_enrolment), 0)").
			Scan(&totalEnrolment).Error
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query enrolment total")
			return
		}

		var totalTeacherDeficit int64
		err = db.Model(&dbpkg.TeacherMetric{}).
			Where("academic_year = ?", year).
			Select("COALESCE(SUM(teacher_gap), 0)").
			Scan(&totalTeacherDeficit).Error
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query teacher deficit")
			return
		}

		var levels []riskLevelCount
		err = db.Model(&dbpkg.InfrastructureRecord{}).
			Where("academic_year = ? AND risk_level <> ''", year).
			Select("risk_level, COUNT(*) AS count").
			Group("risk_level").
			Scan(&levels).Error
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query risk distribution")
			return
		}

		type budgetRow struct {
			ClassroomsAllocated int64 `json:"classrooms_allocated"`
			TeachersAllocated   int64 `json:"teachers_allocated"`
			SchoolsResolved     int64 `json:"schools_resolved"`
		}
		var budget budgetRow
		err = db.Model(&dbpkg.BudgetSimulation{}).
			Where("academic_year = ?", year).
			Select("COALESCE(SUM(classrooms_allocated), 0) AS classrooms_allocated, COALESCE(SUM(teachers_allocated), 0) AS teachers_allocated, COALESCE(SUM(CASE WHEN classroom_resolved AND teacher_resolved THEN 1 ELSE 0 END), 0) AS schools_resolved").
			Scan(&budget).Error
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query budget summary")
			return
		}

		var districts []dbpkg.DistrictComplianceIndex
		err = db.Where("academic_year = ?", year).
			Order("district_rank, district").
			Find(&districts).Error
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query district scorecards")
			return
		}

		jsonResponse(ctx, map[string]any{
			"academic_year":           year,
			"total_schools":           kpis.TotalSchools,
			"total_enrolment":         totalEnrolment,
			"total_classroom_deficit": kpis.TotalClassroomDeficit,
			"total_teacher_deficit":   totalTeacherDeficit,
			"avg_risk_score":          kpis.AvgRiskScore,
			"risk_distribution":       levels,
			"budget":                  budget,
			"districts":               districts,
		})
	}
}

// StateTrends is the multi-year state series: per-year averages plus trend
// direction counts from the trend table.
func StateTrends(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		type yearPoint struct {
			AcademicYear   string  `json:"academic_year"`
			Schools        int64   `json:"schools"`
			AvgRiskScore   float64 `json:"avg_risk_score"`
			TotalEnrolment int64   `json:"total_enrolment"`
		}
		var series []yearPoint
		err := db.Raw(`
			SELECT i.academic_year,
			       COUNT(*) AS schools,
			       COALESCE(AVG(i.risk_score), 0) AS avg_risk_score,
			       COALESCE(SUM(y.total_enrolment), 0) AS total_enrolment
			FROM infrastructure_records i
			LEFT JOIN yearly_metrics y
			  ON y.school_id = i.school_id AND y.academic_year = i.academic_year
			GROUP BY i.academic_year
			ORDER BY i.academic_year`).Scan(&series).Error
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query state series")
			return
		}

		type directionCount struct {
			AcademicYear   string `json:"academic_year"`
			TrendDirection string `json:"trend_direction"`
			Count          int64  `json:"count"`
		}
		var directions []directionCount
		err = db.Model(&dbpkg.RiskTrend{}).
			Select("academic_year, trend_direction, COUNT(*) AS count").
			Group("academic_year, trend_direction").
			Order("academic_year").
			Scan(&directions).Error
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query trend directions")
			return
		}

		var chronic int64
		err = db.Model(&dbpkg.RiskTrend{}).
			Where("chronic_risk_flag = ?", true).
			Distinct("school_id").
			Count(&chronic).Error
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query chronic schools")
			return
		}

		jsonResponse(ctx, map[string]any{
			"series":          series,
			"directions":      directions,
			"chronic_schools": chronic,
		})
	}
}

// StateForecast summarizes both forecasters per horizon year.
func StateForecast(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		type horizonRow struct {
			YearsAhead            int   `json:"years_ahead"`
			Schools               int64 `json:"schools"`
			ProjectedEnrolment    int64 `json:"projected_enrolment"`
			ProjectedClassroomGap int64 `json:"projected_classroom_gap"`
			ProjectedTeacherGap   int64 `json:"projected_teacher_gap"`
		}
		summarize := func(model any) ([]horizonRow, error) {
			var rows []horizonRow
			err := db.Model(model).
				Select("years_ahead, COUNT(*) AS schools, COALESCE(SUM(projected_enrolment), 0) AS projected_enrolment, COALESCE(SUM(projected_classroom_gap), 0) AS projected_classroom_gap, COALESCE(SUM(projected_teacher_gap), 0) AS projected_teacher_gap").
				Group("years_ahead").
				Order("years_ahead").
				Scan(&rows).Error
			return rows, err
		}

		wma, err := summarize(&dbpkg.EnrolmentForecast{})
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query forecast summary")
			return
		}
		ml, err := summarize(&dbpkg.MLEnrolmentForecast{})
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query model forecast summary")
			return
		}

		jsonResponse(ctx, map[string]any{
			"weighted_average": wma,
			"model":            ml,
			"model_version":    pipeline.MLModelVersion,
		})
	}
}
