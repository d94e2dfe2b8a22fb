package db

import (
	"time"

	"gorm.io/datatypes"
)

// Derived tables. Every row here is a deterministic function of the fact
// tables plus pipeline parameters; each stage fully recomputes its table
// for the targeted year inside one transaction.

// RiskTrend tracks how one school's risk score moves across its own
// chronological sequence of observed years.
type RiskTrend struct {
	ID uint `gorm:"primaryKey" json:"-"`

	SchoolID     string `gorm:"uniqueIndex:idx_trend_school_year,priority:1;size:50;not null" json:"school_id"`
	AcademicYear string `gorm:"uniqueIndex:idx_trend_school_year,priority:2;size:20;not null" json:"academic_year"`

	RiskScore     float64  `json:"risk_score"`
	PrevRiskScore *float64 `json:"prev_risk_score"`

	// RiskDelta is nil for the school's first observed year (BASELINE).
	RiskDelta      *float64 `json:"risk_delta"`
	TrendDirection string   `gorm:"index:idx_trend_direction;size:20" json:"trend_direction"`

	// YearSequence is this row's 1-based position in the school's history.
	YearSequence int `json:"year_sequence"`

	ChronicRiskFlag bool `json:"chronic_risk_flag"`
	VolatileFlag    bool `json:"volatile_flag"`

	CumulativeAvgRisk float64 `json:"cumulative_avg_risk"`
}

// PriorityIndex ranks schools state-wide and per-district for one year and
// buckets them into percentile tiers.
type PriorityIndex struct {
	ID uint `gorm:"primaryKey" json:"-"`

	SchoolID     string `gorm:"uniqueIndex:idx_priority_school_year,priority:1;size:50;not null" json:"school_id"`
	AcademicYear string `gorm:"uniqueIndex:idx_priority_school_year,priority:2;size:20;not null" json:"academic_year"`

	RiskScore    float64 `json:"risk_score"`
	StateRank    int     `gorm:"index" json:"state_rank"`
	DistrictRank int     `json:"district_rank"`

	// PriorityBucket is one of TOP_5 / TOP_10 / TOP_20 / STANDARD.
	PriorityBucket string `gorm:"size:20" json:"priority_bucket"`

	PersistentHighRisk bool `json:"persistent_high_risk"`
}

// DistrictComplianceIndex is the per-district-year scorecard.
type DistrictComplianceIndex struct {
	ID uint `gorm:"primaryKey" json:"-"`

	District     string `gorm:"uniqueIndex:idx_dci_district_year,priority:1;size:100;not null" json:"district"`
	AcademicYear string `gorm:"uniqueIndex:idx_dci_district_year,priority:2;size:20;not null" json:"academic_year"`

	TotalSchools          int     `json:"total_schools"`
	AvgRiskScore          float64 `json:"avg_risk_score"`
	PctHighCritical       float64 `json:"pct_high_critical"`
	TotalClassroomDeficit int     `json:"total_classroom_deficit"`
	TotalTeacherDeficit   int     `json:"total_teacher_deficit"`
	TotalEnrolment        int64   `json:"total_enrolment"`
	AvgClassroomCondition float64 `json:"avg_classroom_condition"`

	// YoYRiskImprovement is nil for the district's first scored year.
	YoYRiskImprovement *float64 `json:"yoy_risk_improvement"`

	DistrictRank    int    `gorm:"index" json:"district_rank"`
	ComplianceGrade string `gorm:"size:5" json:"compliance_grade"`
}

// BudgetSimulation records the committed allocation run for one school-year.
// Re-running with different budget parameters overwrites the whole table for
// that year.
type BudgetSimulation struct {
	ID uint `gorm:"primaryKey" json:"-"`

	SchoolID     string `gorm:"uniqueIndex:idx_budget_school_year,priority:1;size:50;not null" json:"school_id"`
	AcademicYear string `gorm:"uniqueIndex:idx_budget_school_year,priority:2;size:20;not null" json:"academic_year"`

	RiskLevel    string `gorm:"size:20" json:"risk_level"`
	ClassroomGap int    `json:"classroom_gap"`
	TeacherGap   int    `json:"teacher_gap"`

	ClassroomsAllocated int  `json:"classrooms_allocated"`
	TeachersAllocated   int  `json:"teachers_allocated"`
	ClassroomResolved   bool `json:"classroom_resolved"`
	TeacherResolved     bool `json:"teacher_resolved"`

	// AllocationPriority is the 1-based position in the allocation walk
	// (risk-level tier, then risk score descending).
	AllocationPriority int `gorm:"index:idx_budget_priority" json:"allocation_priority"`
}

// EnrolmentForecast projects one school's enrolment and requirements
// 1-3 years past its latest observed year using the recency-weighted
// moving-average growth estimate.
type EnrolmentForecast struct {
	ID uint `gorm:"primaryKey" json:"-"`

	SchoolID     string `gorm:"uniqueIndex:idx_forecast_school,priority:1;size:50;not null" json:"school_id"`
	BaseYear     string `gorm:"uniqueIndex:idx_forecast_school,priority:2;size:20;not null" json:"base_year"`
	ForecastYear string `gorm:"size:20" json:"forecast_year"`
	YearsAhead   int    `gorm:"uniqueIndex:idx_forecast_school,priority:3" json:"years_ahead"`

	BaseEnrolment int     `json:"base_enrolment"`
	GrowthRate    float64 `json:"growth_rate"`

	ProjectedEnrolment     int `json:"projected_enrolment"`
	ProjectedClassroomsReq int `json:"projected_classrooms_req"`
	ProjectedTeachersReq   int `json:"projected_teachers_req"`
	CurrentClassrooms      int `json:"current_classrooms"`
	CurrentTeachers        int `json:"current_teachers"`
	ProjectedClassroomGap  int `json:"projected_classroom_gap"`
	ProjectedTeacherGap    int `json:"projected_teacher_gap"`

	SchoolCategory string `gorm:"size:10" json:"school_category"`
}

// MLEnrolmentForecast mirrors EnrolmentForecast but is produced by the
// alternative model-based growth estimator. Same projection contract.
type MLEnrolmentForecast struct {
	ID uint `gorm:"primaryKey" json:"-"`

	SchoolID     string `gorm:"uniqueIndex:idx_ml_forecast_school,priority:1;size:50;not null" json:"school_id"`
	BaseYear     string `gorm:"uniqueIndex:idx_ml_forecast_school,priority:2;size:20;not null" json:"base_year"`
	ForecastYear string `gorm:"size:20" json:"forecast_year"`
	YearsAhead   int    `gorm:"uniqueIndex:idx_ml_forecast_school,priority:3" json:"years_ahead"`

	BaseEnrolment int     `json:"base_enrolment"`
	GrowthRate    float64 `json:"growth_rate"`

	ProjectedEnrolment     int `json:"projected_enrolment"`
	ProjectedClassroomsReq int `json:"projected_classrooms_req"`
	ProjectedTeachersReq   int `json:"projected_teachers_req"`
	CurrentClassrooms      int `json:"current_classrooms"`
	CurrentTeachers        int `json:"current_teachers"`
	ProjectedClassroomGap  int `json:"projected_classroom_gap"`
	ProjectedTeacherGap    int `json:"projected_teacher_gap"`

	SchoolCategory string `gorm:"size:10" json:"school_category"`
	ModelVersion   string `gorm:"size:20" json:"model_version"`
}

// SchoolProposal is a submitted resource request plus its validation
// verdict. The decision is computed once at write time and is not
// retroactively recomputed when gaps change later.
type SchoolProposal struct {
	ID uint `gorm:"primaryKey" json:"id"`

	SchoolID     string `gorm:"index:idx_proposal_school,priority:1;size:50;not null" json:"school_id"`
	AcademicYear string `gorm:"index:idx_proposal_school,priority:2;size:20;not null" json:"academic_year"`

	ClassroomsRequested int    `json:"classrooms_requested"`
	TeachersRequested   int    `json:"teachers_requested"`
	Justification       string `json:"justification"`
	SubmittedBy         string `gorm:"size:100" json:"submitted_by"`

	SubmittedAt time.Time `json:"submitted_at"`

	ActualClassroomGap int `json:"actual_classroom_gap"`
	ActualTeacherGap   int `json:"actual_teacher_gap"`

	ClassroomRatio float64 `json:"classroom_ratio"`
	TeacherRatio   float64 `json:"teacher_ratio"`

	DecisionStatus  string  `gorm:"index;size:20" json:"decision_status"`
	ReasonCode      string  `gorm:"size:50" json:"reason_code"`
	ConfidenceScore float64 `json:"confidence_score"`

	ValidatedAt time.Time `json:"validated_at"`
}

// PipelineRun logs one stage execution over one academic year, including
// the parameter snapshot it ran with. Pruned by the retention worker.
type PipelineRun struct {
	ID uint `gorm:"primaryKey" json:"id"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`

	Stage        string `gorm:"size:40;not null" json:"stage"`
	AcademicYear string `gorm:"size:20" json:"academic_year"`

	RowsWritten int64             `json:"rows_written"`
	DurationMs  int64             `json:"duration_ms"`
	Params      datatypes.JSONMap `gorm:"type:json" json:"params"`

	Status string `gorm:"size:20" json:"status"`
	Error  string `json:"error,omitempty"`
}
