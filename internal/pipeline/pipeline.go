package pipeline

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"schoolsight/internal/config"
	dbpkg "schoolsight/internal/db"
)

// Sentinel errors for stage execution.
var (
	// ErrNoFacts means the targeted year has no ingested facts to compute
	// over.
	ErrNoFacts = errors.New("no facts for academic year")

	// ErrStageNotReady means an upstream stage has not populated the
	// computed columns this stage reads for any row in scope. Individual
	// rows without counterpart facts are skipped, not failed.
	ErrStageNotReady = errors.New("upstream stage has not run")
)

// Stage names, in execution order.
const (
	StageClassroomGap = "classroom_gap"
	StageTeacherGap   = "teacher_gap"
	StageRisk         = "risk"
	StagePriority     = "priority"
	StageBudget       = "budget"
	StageTrend        = "trend"
	StageDistrict     = "district"
	StageForecast     = "forecast"
	StageMLForecast   = "ml_forecast"
	StageProposal     = "proposal"
)

// perYearStages run once for each academic year; the rest run once over the
// full history.
var perYearStages = []string{
	StageClassroomGap, StageTeacherGap, StageRisk, StagePriority, StageBudget,
}

var historyStages = []string{
	StageTrend, StageDistrict, StageForecast, StageMLForecast, StageProposal,
}

// Params is the budget envelope a pipeline run allocates under.
type Params struct {
	ClassroomBudget  int64
	CostPerClassroom int64
	TeacherPosts     int
}

// Runner executes derived-metric stages against the database.
type Runner struct {
	db     *gorm.DB
	params Params
}

// New builds a Runner with the configured budget envelope.
func New(gdb *gorm.DB, cfg *config.Config) *Runner {
	return &Runner{
		db: gdb,
		params: Params{
			ClassroomBudget:  cfg.ClassroomBudget,
			CostPerClassroom: cfg.CostPerClassroom,
			TeacherPosts:     cfg.TeacherPosts,
		},
	}
}

// Params returns the budget envelope the runner allocates under.
func (r *Runner) Params() Params {
	return r.params
}

// RunStage executes one named stage. Per-year stages require a non-empty
// year; full-history stages ignore it.
func (r *Runner) RunStage(stage, year string) (int64, error) {
	start := time.Now()
	rows, err := r.dispatch(stage, year)
	r.recordRun(stage, year, rows, time.Since(start), err)
	return rows, err
}

func (r *Runner) dispatch(stage, year string) (int64, error) {
	switch stage {
	case StageClassroomGap:
		return r.runClassroomGapStage(year)
	case StageTeacherGap:
		return r.runTeacherGapStage(year)
	case StageRisk:
		return r.runRiskStage(year)
	case StagePriority:
		return r.runPriorityStage(year)
	case StageBudget:
		return r.runBudgetStage(year)
	case StageTrend:
		return r.runTrendStage()
	case StageDistrict:
		return r.runDistrictStage()
	case StageForecast:
		return r.runForecastStage()
	case StageMLForecast:
		return r.runMLForecastStage()
	case StageProposal:
		return r.runProposalStage()
	default:
		return 0, fmt.Errorf("unknown pipeline stage %q", stage)
	}
}

// RunAll executes every stage over every observed academic year: the
// per-year stages in chronological order, then the full-history stages. A
// failing stage aborts the run so downstream stages never read half-built
// inputs.
func (r *Runner) RunAll() error {
	years, err := dbpkg.AcademicYears(r.db)
	if err != nil {
		return err
	}
	if len(years) == 0 {
		return ErrNoFacts
	}

	for _, year := range years {
		for _, stage := range perYearStages {
			if _, err := r.RunStage(stage, year); err != nil {
				return fmt.Errorf("stage %s year %s: %w", stage, year, err)
			}
		}
	}
	for _, stage := range historyStages {
		if _, err := r.RunStage(stage, ""); err != nil {
			return fmt.Errorf("stage %s: %w", stage, err)
		}
	}
	return nil
}

// KnownStage reports whether a stage name is dispatchable.
func KnownStage(stage string) bool {
	for _, s := range append(append([]string{}, perYearStages...), historyStages...) {
		if s == stage {
			return true
		}
	}
	return false
}

// PerYearStage reports whether a stage needs an academic year.
func PerYearStage(stage string) bool {
	for _, s := range perYearStages {
		if s == stage {
			return true
		}
	}
	return false
}

// recordRun logs one stage execution to the run log table and the metrics
// registry. Run log failures are logged but never fail the stage.
func (r *Runner) recordRun(stage, year string, rows int64, dur time.Duration, runErr error) {
	status := "ok"
	errText := ""
	if runErr != nil {
		status = "error"
		errText = runErr.Error()
		stageErrors.WithLabelValues(stage).Inc()
		log.Printf("pipeline stage %s year %q failed after %s: %v", stage, year, dur, runErr)
	} else {
		stageRows.WithLabelValues(stage).Add(float64(rows))
		log.Printf("pipeline stage %s year %q wrote %d rows in %s", stage, year, rows, dur)
	}
	stageDuration.WithLabelValues(stage).Observe(dur.Seconds())

	run := dbpkg.PipelineRun{
		Stage:        stage,
		AcademicYear: year,
		RowsWritten:  rows,
		DurationMs:   dur.Milliseconds(),
		Params: datatypes.JSONMap{
			"classroom_budget":   r.params.ClassroomBudget,
			"cost_per_classroom": r.params.CostPerClassroom,
			"teacher_posts":      r.params.TeacherPosts,
		},
		Status: status,
		Error:  errText,
	}
	if err := r.db.Create(&run).Error; err != nil {
		log.Printf("pipeline run log write failed: %v", err)
	}
}

var (
	stageDuration *prometheus.HistogramVec
	stageRows     *prometheus.CounterVec
	stageErrors   *prometheus.CounterVec
)

// InitMetrics registers the pipeline's Prometheus collectors. Call once at
// startup before any stage runs.
func InitMetrics() {
	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Wall time per pipeline stage execution.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"stage"},
	)
	stageRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stage_rows_written_total",
			Help: "Derived rows written per pipeline stage.",
		},
		[]string{"stage"},
	)
	stageErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stage_errors_total",
			Help: "Failed stage executions per pipeline stage.",
		},
		[]string{"stage"},
	)

	prometheus.MustRegister(stageDuration, stageRows, stageErrors)
}

// StartPipelineWorker launches a background goroutine that runs the full
// pipeline once at startup and then on the configured interval.
func StartPipelineWorker(r *Runner, intervalHours int) {
	go func() {
		if err := r.RunAll(); err != nil && !errors.Is(err, ErrNoFacts) {
			log.Printf("pipeline run error (startup): %v", err)
		}

		ticker := time.NewTicker(time.Duration(intervalHours) * time.Hour)
		defer ticker.Stop()

		for range ticker.C {
			if err := r.RunAll(); err != nil && !errors.Is(err, ErrNoFacts) {
				log.Printf("pipeline run error: %v", err)
			}
		}
	}()
}
