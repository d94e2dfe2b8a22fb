package config

import (
	"os"
	"strconv"
)

// Config holds the core runtime configuration for the service.
// Values are primarily sourced from environment variables, with
// sensible defaults where appropriate. See .env.example.
type Config struct {
	DatabaseURL string

	ListenAddr string

	// ClassroomBudget is the total classroom-construction budget (in rupees)
	// used by the committed allocation run. The dry-run endpoint accepts its
	// own parameters and ignores these defaults.
	ClassroomBudget  int64
	CostPerClassroom int64

	// TeacherPosts is the number of teacher postings available to the
	// committed allocation run.
	TeacherPosts int

	// PipelineIntervalHours is how often the background worker recomputes
	// all derived tables. The worker also runs once at startup.
	PipelineIntervalHours int

	// RunLogRetentionDays bounds how long pipeline_runs rows are kept.
	RunLogRetentionDays int
}

// Load reads configuration from environment variables and applies defaults.
func Load() *Config {
	cfg := &Config{
		DatabaseURL:           os.Getenv("APP_DATABASE_URL"),
		ListenAddr:            getenv("APP_LISTEN_ADDR", ":8080"),
		ClassroomBudget:       500_000_000,
		CostPerClassroom:      500_000,
		TeacherPosts:          10_000,
		PipelineIntervalHours: 24,
		RunLogRetentionDays:   90,
	}

	if v := os.Getenv("APP_CLASSROOM_BUDGET"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.ClassroomBudget = n
		}
	}
	if v := os.Getenv("APP_COST_PER_CLASSROOM"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.CostPerClassroom = n
		}
	}
	if v := os.Getenv("APP_TEACHER_POSTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.TeacherPosts = n
		}
	}
	if v := os.Getenv("APP_PIPELINE_INTERVAL_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PipelineIntervalHours = n
		}
	}
	if v := os.Getenv("APP_RUNLOG_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RunLogRetentionDays = n
		}
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
