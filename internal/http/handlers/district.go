package handlers

import (
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "schoolsight/internal/db"
)

// DistrictList returns the latest-year district scorecards ordered by rank.
func DistrictList(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		year, ok := resolveYear(ctx, db)
		if !ok {
			return
		}

		var rows []dbpkg.DistrictComplianceIndex
		err := db.Where("academic_year = ?", year).
			Order("district_rank, district").
			Find(&rows).Error
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query districts")
			return
		}
		jsonResponse(ctx, map[string]any{"academic_year": year, "districts": rows})
	}
}

// DistrictCompliance returns one district's full scorecard history.
func DistrictCompliance(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		district := pathString(ctx, "district")
		if district == "" {
			errResponse(ctx, fasthttp.StatusBadRequest, "missing district")
			return
		}

		var rows []dbpkg.DistrictComplianceIndex
		err := db.Where("district = ?", district).
			Order("academic_year").
			Find(&rows).Error
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query district history")
			return
		}
		if len(rows) == 0 {
			errResponse(ctx, fasthttp.StatusNotFound, "unknown district")
			return
		}
		jsonResponse(ctx, map[string]any{"district": district, "history": rows})
	}
}

// DistrictPriority lists a district's highest-priority schools for one year,
// joined with their risk columns.
func DistrictPriority(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		district := pathString(ctx, "district")
		if district == "" {
			errResponse(ctx, fasthttp.StatusBadRequest, "missing district")
			return
		}
		year, ok := resolveYear(ctx, db)
		if !ok {
			return
		}
		limit := parseLimit(ctx, 50, 500)

		type priorityRow struct {
			SchoolID           string  `json:"school_id"`
			SchoolName         string  `json:"school_name"`
			Block              string  `json:"block"`
			RiskScore          float64 `json:"risk_score"`
			RiskLevel          string  `json:"risk_level"`
			StateRank          int     `json:"state_rank"`
			DistrictRank       int     `json:"district_rank"`
			PriorityBucket     string  `json:"priority_bucket"`
			PersistentHighRisk bool    `json:"persistent_high_risk"`
			ClassroomGap       int     `json:"classroom_gap"`
		}
		var rows []priorityRow
		err := db.Raw(`
			SELECT p.school_id, s.school_name, s.block,
			       p.risk_score, i.risk_level,
			       p.state_rank, p.district_rank, p.priority_bucket,
			       p.persistent_high_risk,
			       COALESCE(i.classroom_gap, 0) AS classroom_gap
			FROM priority_indices p
			JOIN schools s ON s.school_id = p.school_id
			LEFT JOIN infrastructure_records i
			  ON i.school_id = p.school_id AND i.academic_year = p.academic_year
			WHERE s.district = ? AND p.academic_year = ?
			ORDER BY p.district_rank, p.school_id
			LIMIT ?`, district, year, limit).Scan(&rows).Error
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query district priority")
			return
		}
		jsonResponse(ctx, map[string]any{
			"district":      district,
			"academic_year": year,
			"schools":       rows,
		})
	}
}

// DistrictBlocks is the block-by-risk-level heatmap for one district-year.
func DistrictBlocks(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		district := pathString(ctx, "district")
		if district == "" {
			errResponse(ctx, fasthttp.StatusBadRequest, "missing district")
			return
		}
		year, ok := resolveYear(ctx, db)
		if !ok {
			return
		}

		type blockCell struct {
			Block     string `json:"block"`
			RiskLevel string `json:"risk_level"`
			Count     int64  `json:"count"`
		}
		var cells []blockCell
		err := db.Raw(`
			SELECT s.block, i.risk_level, COUNT(*) AS count
			FROM infrastructure_records i
			JOIN schools s ON s.school_id = i.school_id
			WHERE s.district = ? AND i.academic_year = ? AND i.risk_level <> ''
			GROUP BY s.block, i.risk_level
			ORDER BY s.block, i.risk_level`, district, year).Scan(&cells).Error
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query block heatmap")
			return
		}
		jsonResponse(ctx, map[string]any{
			"district":      district,
			"academic_year": year,
			"blocks":        cells,
		})
	}
}
