package handlers

import (
	"encoding/json"
	"strconv"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "schoolsight/internal/db"
)

// factsPayload is the bulk fact delivery from the upstream collector. Any
// section may be empty; rows upsert on their natural keys and never touch
// computed columns.
type factsPayload struct {
	Schools        []dbpkg.School               `json:"schools"`
	Metrics        []dbpkg.YearlyMetric         `json:"metrics"`
	Infrastructure []dbpkg.InfrastructureRecord `json:"infrastructure"`
	Teachers       []dbpkg.TeacherMetric        `json:"teachers"`
}

// IngestFacts bulk-upserts fact rows. Computed columns are left untouched so
// a fact correction keeps stale derived values only until the next pipeline
// run overwrites them.
func IngestFacts(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var payload factsPayload
		if err := json.Unmarshal(ctx.PostBody(), &payload); err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
			return
		}
		total := len(payload.Schools) + len(payload.Metrics) +
			len(payload.Infrastructure) + len(payload.Teachers)
		if total == 0 {
			errResponse(ctx, fasthttp.StatusBadRequest, "no facts provided")
			return
		}

		for _, s := range payload.Schools {
			if s.SchoolID == "" {
				errResponse(ctx, fasthttp.StatusBadRequest, "school with empty school_id")
				return
			}
		}
		for _, m := range payload.Metrics {
			if m.SchoolID == "" || m.AcademicYear == "" {
				errResponse(ctx, fasthttp.StatusBadRequest, "metric row missing school_id or academic_year")
				return
			}
			if m.TotalEnrolment < 0 {
				errResponse(ctx, fasthttp.StatusBadRequest, "negative enrolment for "+m.SchoolID)
				return
			}
		}

		err := db.Transaction(func(tx *gorm.DB) error {
			if len(payload.Schools) > 0 {
				if err := tx.Clauses(clause.OnConflict{
					Columns: []clause.Column{{Name: "school_id"}},
					DoUpdates: clause.AssignmentColumns([]string{
						"school_name", "district", "block", "category",
						"management_type", "latitude", "longitude",
					}),
				}).CreateInBatches(payload.Schools, 500).Error; err != nil {
					return err
				}
			}
			if len(payload.Metrics) > 0 {
				if err := tx.Clauses(clause.OnConflict{
					Columns: []clause.Column{{Name: "school_id"}, {Name: "academic_year"}},
					DoUpdates: clause.AssignmentColumns([]string{
						"total_enrolment", "attendance_rate",
					}),
				}).CreateInBatches(payload.Metrics, 500).Error; err != nil {
					return err
				}
			}
			if len(payload.Infrastructure) > 0 {
				if err := tx.Clauses(clause.OnConflict{
					Columns: []clause.Column{{Name: "school_id"}, {Name: "academic_year"}},
					DoUpdates: clause.AssignmentColumns([]string{
						"total_class_rooms", "usable_class_rooms",
						"classroom_condition_score", "drinking_water_available",
						"electricity_available", "internet_available",
						"separate_girls_toilet", "cwsn_toilet_available",
						"ramp_available", "resource_room_available",
						"building_condition", "last_major_repair_year",
					}),
				}).CreateInBatches(payload.Infrastructure, 500).Error; err != nil {
					return err
				}
			}
			if len(payload.Teachers) > 0 {
				if err := tx.Clauses(clause.OnConflict{
					Columns: []clause.Column{{Name: "school_id"}, {Name: "academic_year"}},
					DoUpdates: clause.AssignmentColumns([]string{
						"total_teachers",
					}),
				}).CreateInBatches(payload.Teachers, 500).Error; err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to persist facts")
			return
		}

		ctx.SetStatusCode(fasthttp.StatusAccepted)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"status":"accepted","count":` + strconv.Itoa(total) + `}`)
	}
}
