package db

import (
	"errors"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"schoolsight/internal/config"
)

// Connect opens a GORM database connection using APP_DATABASE_URL (PostgreSQL URL).
func Connect(cfg *config.Config) (*gorm.DB, error) {
	dsn := strings.TrimSpace(cfg.DatabaseURL)
	if dsn == "" {
		return nil, errors.New("APP_DATABASE_URL is required (PostgreSQL URL)")
	}
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return nil, errors.New("APP_DATABASE_URL must be a postgres:// or postgresql:// URL")
	}

	// PrepareStmt: true prevents the GORM postgres migrator from forcing simple protocol
	// for "SELECT * FROM table LIMIT 1", which would otherwise trigger "insufficient arguments".
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{PrepareStmt: true})
	if err != nil {
		return nil, err
	}

	// Auto-migrate fact and derived tables.
	if err := gdb.AutoMigrate(
		&School{},
		&YearlyMetric{},
		&InfrastructureRecord{},
		&TeacherMetric{},
		&RiskTrend{},
		&PriorityIndex{},
		&DistrictComplianceIndex{},
		&BudgetSimulation{},
		&EnrolmentForecast{},
		&MLEnrolmentForecast{},
		&SchoolProposal{},
		&PipelineRun{},
	); err != nil {
		return nil, err
	}

	return gdb, nil
}

// AcademicYears returns the distinct academic years present in the enrolment
// facts, in chronological (string) order.
func AcademicYears(gdb *gorm.DB) ([]string, error) {
	var years []string
	err := gdb.Model(&YearlyMetric{}).
		Distinct("academic_year").
		Order("academic_year").
		Pluck("academic_year", &years).Error
	return years, err
}

// LatestAcademicYear returns the most recent academic year in the enrolment
// facts, or "" when no facts have been ingested yet.
func LatestAcademicYear(gdb *gorm.DB) (string, error) {
	var year string
	err := gdb.Model(&YearlyMetric{}).
		Select("COALESCE(MAX(academic_year), '')").
		Scan(&year).Error
	return year, err
}
