package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"schoolsight/internal/config"
	dbpkg "schoolsight/internal/db"
)

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// A pooled second connection to :memory: would see an empty database.
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, gdb.AutoMigrate(
		&dbpkg.School{},
		&dbpkg.YearlyMetric{},
		&dbpkg.InfrastructureRecord{},
		&dbpkg.TeacherMetric{},
		&dbpkg.PriorityIndex{},
		&dbpkg.RiskTrend{},
		&dbpkg.DistrictComplianceIndex{},
		&dbpkg.BudgetSimulation{},
	))

	return New(gdb, &config.Config{
		ClassroomBudget:  500_000_000,
		CostPerClassroom: 500_000,
		TeacherPosts:     10_000,
	})
}

// A fact row with no matching enrolment for its year is never touched by
// the gap stages; the downstream stages must score the rest of the year
// around it instead of failing.
func TestStagesSkipOrphanFactRows(t *testing.T) {
	r := newTestRunner(t)
	const year = "2023-24"

	require.NoError(t, r.db.Create(&dbpkg.School{
		SchoolID: "S1", District: "Alpha", Category: "1",
	}).Error)
	require.NoError(t, r.db.Create(&dbpkg.YearlyMetric{
		SchoolID: "S1", AcademicYear: year, TotalEnrolment: 900,
	}).Error)
	require.NoError(t, r.db.Create(&dbpkg.InfrastructureRecord{
		SchoolID: "S1", AcademicYear: year, UsableClassRooms: 25,
	}).Error)
	require.NoError(t, r.db.Create(&dbpkg.TeacherMetric{
		SchoolID: "S1", AcademicYear: year, TotalTeachers: 20,
	}).Error)

	// S2 reported infrastructure but no enrolment; S3 only teachers.
	require.NoError(t, r.db.Create(&dbpkg.School{
		SchoolID: "S2", District: "Alpha", Category: "1",
	}).Error)
	require.NoError(t, r.db.Create(&dbpkg.InfrastructureRecord{
		SchoolID: "S2", AcademicYear: year, UsableClassRooms: 4,
	}).Error)
	require.NoError(t, r.db.Create(&dbpkg.School{
		SchoolID: "S3", District: "Alpha", Category: "1",
	}).Error)
	require.NoError(t, r.db.Create(&dbpkg.TeacherMetric{
		SchoolID: "S3", AcademicYear: year, TotalTeachers: 7,
	}).Error)

	n, err := r.runClassroomGapStage(year)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	n, err = r.runTeacherGapStage(year)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = r.runRiskStage(year)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "only the fully-reported school scores")

	var s1 dbpkg.InfrastructureRecord
	require.NoError(t, r.db.Where("school_id = ?", "S1").First(&s1).Error)
	require.NotNil(t, s1.RiskScore)
	assert.Equal(t, 0.2083, *s1.RiskScore)
	assert.Equal(t, RiskModerate, s1.RiskLevel)

	var s2 dbpkg.InfrastructureRecord
	require.NoError(t, r.db.Where("school_id = ?", "S2").First(&s2).Error)
	assert.Nil(t, s2.RequiredClassRooms, "orphan row stays uncomputed")
	assert.Nil(t, s2.RiskScore)

	n, err = r.runPriorityStage(year)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	n, err = r.runBudgetStage(year)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	var sim dbpkg.BudgetSimulation
	require.NoError(t, r.db.Where("school_id = ?", "S1").First(&sim).Error)
	assert.Equal(t, 5, sim.ClassroomsAllocated)
	assert.True(t, sim.ClassroomResolved)

	n, err = r.runTrendStage()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	n, err = r.runDistrictStage()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	var district dbpkg.DistrictComplianceIndex
	require.NoError(t, r.db.Where("district = ?", "Alpha").First(&district).Error)
	assert.Equal(t, 1, district.TotalSchools, "orphan rows do not count toward the district")
	assert.Equal(t, GradeB, district.ComplianceGrade)
}

// When no row in the year carries computed columns the upstream stage has
// genuinely not run, which is still an ordering failure.
func TestStagesFailWhenUpstreamNeverRan(t *testing.T) {
	r := newTestRunner(t)
	const year = "2023-24"

	require.NoError(t, r.db.Create(&dbpkg.School{
		SchoolID: "S1", District: "Alpha", Category: "1",
	}).Error)
	require.NoError(t, r.db.Create(&dbpkg.YearlyMetric{
		SchoolID: "S1", AcademicYear: year, TotalEnrolment: 900,
	}).Error)
	require.NoError(t, r.db.Create(&dbpkg.InfrastructureRecord{
		SchoolID: "S1", AcademicYear: year, UsableClassRooms: 25,
	}).Error)

	_, err := r.runRiskStage(year)
	require.ErrorIs(t, err, ErrStageNotReady)

	_, err = r.runPriorityStage(year)
	require.ErrorIs(t, err, ErrStageNotReady)

	_, err = r.loadBudgetInputs(year)
	require.ErrorIs(t, err, ErrStageNotReady)
}
