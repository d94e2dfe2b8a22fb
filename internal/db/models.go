package db

// Fact tables. Rows are supplied by the upstream ingestion collaborator,
// keyed by (school_id, academic_year). Computed columns are nil until the
// pipeline has run for that year and are overwritten on every run; they are
// never hand-edited.

// School is the immutable reference record for one school. Created once
// from ingestion, rarely updated.
type School struct {
	SchoolID   string `gorm:"primaryKey;size:50" json:"school_id"`
	SchoolName string `gorm:"size:255" json:"school_name"`
	District   string `gorm:"index;size:100" json:"district"`
	Block      string `gorm:"size:100" json:"block"`

	// Category encodes the grade span ("1".."11"). Used to pick the
	// classroom and PTR norms.
	Category string `gorm:"size:10" json:"category"`

	ManagementType string  `gorm:"size:100" json:"management_type"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
}

// YearlyMetric holds one school's enrolment for one academic year.
// Append-only fact.
type YearlyMetric struct {
	ID uint `gorm:"primaryKey" json:"-"`

	SchoolID     string `gorm:"uniqueIndex:idx_yearly_school_year,priority:1;size:50;not null" json:"school_id"`
	AcademicYear string `gorm:"uniqueIndex:idx_yearly_school_year,priority:2;size:20;not null" json:"academic_year"`

	TotalEnrolment int     `gorm:"not null" json:"total_enrolment"`
	AttendanceRate float64 `json:"attendance_rate"`
}

// InfrastructureRecord holds one school-year's classroom facts plus the
// computed gap and risk columns.
type InfrastructureRecord struct {
	ID uint `gorm:"primaryKey" json:"-"`

	SchoolID     string `gorm:"uniqueIndex:idx_infra_school_year,priority:1;size:50;not null" json:"school_id"`
	AcademicYear string `gorm:"uniqueIndex:idx_infra_school_year,priority:2;size:20;not null" json:"academic_year"`

	TotalClassRooms         int `json:"total_class_rooms"`
	UsableClassRooms        int `json:"usable_class_rooms"`
	ClassroomConditionScore int `json:"classroom_condition_score"`

	DrinkingWaterAvailable bool   `json:"drinking_water_available"`
	ElectricityAvailable   bool   `json:"electricity_available"`
	InternetAvailable      bool   `json:"internet_available"`
	SeparateGirlsToilet    bool   `json:"separate_girls_toilet"`
	CWSNToiletAvailable    bool   `json:"cwsn_toilet_available"`
	RampAvailable          bool   `json:"ramp_available"`
	ResourceRoomAvailable  bool   `json:"resource_room_available"`
	BuildingCondition      string `gorm:"size:50" json:"building_condition"`
	LastMajorRepairYear    int    `json:"last_major_repair_year"`

	// Computed by the gap and risk stages.
	RequiredClassRooms    *int     `json:"required_class_rooms"`
	ClassroomGap          *int     `json:"classroom_gap"`
	ClassroomDeficitRatio *float64 `json:"classroom_deficit_ratio"`
	TeacherDeficitRatio   *float64 `json:"teacher_deficit_ratio"`
	EnrolmentGrowthRate   *float64 `json:"enrolment_growth_rate"`
	RiskScore             *float64 `gorm:"index" json:"risk_score"`
	RiskLevel             string   `gorm:"size:20" json:"risk_level"`
}

// TeacherMetric holds one school-year's teacher headcount plus the
// computed requirement and shortfall.
type TeacherMetric struct {
	ID uint `gorm:"primaryKey" json:"-"`

	SchoolID     string `gorm:"uniqueIndex:idx_teacher_school_year,priority:1;size:50;not null" json:"school_id"`
	AcademicYear string `gorm:"uniqueIndex:idx_teacher_school_year,priority:2;size:20;not null" json:"academic_year"`

	TotalTeachers int `json:"total_teachers"`

	RequiredTeachers *int `json:"required_teachers"`
	TeacherGap       *int `json:"teacher_gap"`
}
