package handlers

import (
	"errors"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "schoolsight/internal/db"
	"schoolsight/internal/pipeline"
)

// TriggerPipeline runs a recompute on demand. With no parameters it runs
// every stage over every year; "stage" restricts to one stage and "year"
// targets one academic year. Stages are idempotent so repeated triggers are
// safe.
func TriggerPipeline(runner *pipeline.Runner, db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		stage := string(ctx.QueryArgs().Peek("stage"))
		year := string(ctx.QueryArgs().Peek("year"))

		if stage == "" {
			if err := runner.RunAll(); err != nil {
				if errors.Is(err, pipeline.ErrNoFacts) {
					errResponse(ctx, fasthttp.StatusNotFound, "no facts ingested")
					return
				}
				errResponse(ctx, fasthttp.StatusInternalServerError, err.Error())
				return
			}
			jsonResponse(ctx, map[string]any{"status": "ok", "scope": "all"})
			return
		}

		if !pipeline.KnownStage(stage) {
			errResponse(ctx, fasthttp.StatusBadRequest, "unknown stage")
			return
		}
		if pipeline.PerYearStage(stage) && year == "" {
			latest, err := dbpkg.LatestAcademicYear(db)
			if err != nil || latest == "" {
				errResponse(ctx, fasthttp.StatusBadRequest, "year is required for this stage")
				return
			}
			year = latest
		}

		rows, err := runner.RunStage(stage, year)
		if err != nil {
			switch {
			case errors.Is(err, pipeline.ErrNoFacts):
				errResponse(ctx, fasthttp.StatusNotFound, err.Error())
			case errors.Is(err, pipeline.ErrStageNotReady):
				errResponse(ctx, fasthttp.StatusConflict, err.Error())
			default:
				errResponse(ctx, fasthttp.StatusInternalServerError, err.Error())
			}
			return
		}
		jsonResponse(ctx, map[string]any{
			"status":        "ok",
			"stage":         stage,
			"academic_year": year,
			"rows_written":  rows,
		})
	}
}
