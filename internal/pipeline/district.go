package pipeline

import (
	"fmt"
	"sort"

	"gorm.io/gorm"

	dbpkg "schoolsight/internal/db"
)

// Compliance grade labels, best to worst.
const (
	GradeA = "A"
	GradeB = "B"
	GradeC = "C"
	GradeD = "D"
	GradeF = "F"
)

// complianceGrade classifies a district's mean risk score. Graded on the
// unrounded mean so a district sitting at 0.1549 stays an A even though its
// stored average rounds to 0.1550.
func complianceGrade(avgRisk float64) string {
	switch {
	case avgRisk <= 0.15:
		return GradeA
	case avgRisk <= 0.30:
		return GradeB
	case avgRisk <= 0.50:
		return GradeC
	case avgRisk <= 0.75:
		return GradeD
	default:
		return GradeF
	}
}

// DistrictObservation is one scored school-year attributed to its district.
type DistrictObservation struct {
	District       string
	AcademicYear   string
	RiskScore      float64
	RiskLevel      string
	ClassroomGap   int
	TeacherGap     int
	Enrolment      int
	ConditionScore float64
}

// DistrictAggregate is the rollup for one district-year before ranking and
// year-over-year deltas are applied.
type DistrictAggregate struct {
	District              string
	AcademicYear          string
	TotalSchools          int
	AvgRiskScore          float64
	PctHighCritical       float64
	TotalClassroomDeficit int
	TotalTeacherDeficit   int
	TotalEnrolment        int64
	AvgClassroomCondition float64
	ComplianceGrade       string
}

// AggregateDistricts rolls scored school-years up to district-year
// aggregates.
func AggregateDistricts(observations []DistrictObservation) []DistrictAggregate {
	type acc struct {
		schools   int
		riskSum   float64
		elevated  int
		crGap     int
		trGap     int
		enrolment int64
		condSum   float64
	}
	type key struct{ district, year string }

	accs := make(map[key]*acc)
	for _, o := range observations {
		k := key{o.District, o.AcademicYear}
		a := accs[k]
		if a == nil {
			a = &acc{}
			accs[k] = a
		}
		a.schools++
		a.riskSum += o.RiskScore
		if IsElevated(o.RiskLevel) {
			a.elevated++
		}
		a.crGap += o.ClassroomGap
		a.trGap += o.TeacherGap
		a.enrolment += int64(o.Enrolment)
		a.condSum += o.ConditionScore
	}

	out := make([]DistrictAggregate, 0, len(accs))
	for k, a := range accs {
		mean := a.riskSum / float64(a.schools)
		out = append(out, DistrictAggregate{
			District:              k.district,
			AcademicYear:          k.year,
			TotalSchools:          a.schools,
			AvgRiskScore:          round4(mean),
			PctHighCritical:       round2(100 * float64(a.elevated) / float64(a.schools)),
			TotalClassroomDeficit: a.crGap,
			TotalTeacherDeficit:   a.trGap,
			TotalEnrolment:        a.enrolment,
			AvgClassroomCondition: round4(a.condSum / float64(a.schools)),
			ComplianceGrade:       complianceGrade(mean),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AcademicYear != out[j].AcademicYear {
			return out[i].AcademicYear < out[j].AcademicYear
		}
		return out[i].District < out[j].District
	})
	return out
}

// FinalizeDistricts assigns per-year district ranks (worst average risk
// ranks first) and year-over-year deltas against each district's previous
// observed year. Returns rank and delta keyed by district-year in the same
// order as the input.
func FinalizeDistricts(aggregates []DistrictAggregate) (ranks []int, yoy []*float64) {
	ranks = make([]int, len(aggregates))
	yoy = make([]*float64, len(aggregates))

	byYear := make(map[string][]rankable)
	for _, a := range aggregates {
		byYear[a.AcademicYear] = append(byYear[a.AcademicYear],
			rankable{ID: a.District, Score: a.AvgRiskScore})
	}
	yearRanks := make(map[string]map[string]int, len(byYear))
	for year, cohort := range byYear {
		yearRanks[year] = competitionRank(cohort)
	}

	prevAvg := make(map[string]float64)
	prevSeen := make(map[string]bool)
	for i, a := range aggregates {
		ranks[i] = yearRanks[a.AcademicYear][a.District]
	}

	// Aggregates arrive year-ordered, so a single pass links each
	// district-year to its previous observed year.
	for i, a := range aggregates {
		if prevSeen[a.District] {
			d := a.AvgRiskScore - prevAvg[a.District]
			yoy[i] = &d
		}
		prevAvg[a.District] = a.AvgRiskScore
		prevSeen[a.District] = true
	}
	return ranks, yoy
}

// runDistrictStage rebuilds the district compliance index over the full
// history: aggregates per district-year, then ranks within each year and
// links year-over-year movements.
func (r *Runner) runDistrictStage() (int64, error) {
	var infra []dbpkg.InfrastructureRecord
	if err := r.db.Order("school_id, academic_year").Find(&infra).Error; err != nil {
		return 0, err
	}
	if len(infra) == 0 {
		return 0, fmt.Errorf("district: %w", ErrNoFacts)
	}

	var schools []dbpkg.School
	if err := r.db.Select("school_id", "district").Find(&schools).Error; err != nil {
		return 0, err
	}
	districtOf := make(map[string]string, len(schools))
	for _, s := range schools {
		districtOf[s.SchoolID] = s.District
	}

	var teachers []dbpkg.TeacherMetric
	if err := r.db.Find(&teachers).Error; err != nil {
		return 0, err
	}
	type key struct{ school, year string }
	teacherGaps := make(map[key]int, len(teachers))
	for _, tm := range teachers {
		if tm.TeacherGap != nil {
			teacherGaps[key{tm.SchoolID, tm.AcademicYear}] = *tm.TeacherGap
		}
	}

	var metrics []dbpkg.YearlyMetric
	if err := r.db.Find(&metrics).Error; err != nil {
		return 0, err
	}
	enrolments := make(map[key]int, len(metrics))
	for _, ym := range metrics {
		enrolments[key{ym.SchoolID, ym.AcademicYear}] = ym.TotalEnrolment
	}

	observations := make([]DistrictObservation, 0, len(infra))
	for _, rec := range infra {
		// Orphan school-years never scored by the upstream stages do not
		// count toward their district.
		if rec.RiskScore == nil || rec.ClassroomGap == nil {
			continue
		}
		k := key{rec.SchoolID, rec.AcademicYear}
		observations = append(observations, DistrictObservation{
			District:       districtOf[rec.SchoolID],
			AcademicYear:   rec.AcademicYear,
			RiskScore:      *rec.RiskScore,
			RiskLevel:      rec.RiskLevel,
			ClassroomGap:   *rec.ClassroomGap,
			TeacherGap:     teacherGaps[k],
			Enrolment:      enrolments[k],
			ConditionScore: float64(rec.ClassroomConditionScore),
		})
	}

	if len(observations) == 0 {
		return 0, fmt.Errorf("district: no risk scores: %w", ErrStageNotReady)
	}

	aggregates := AggregateDistricts(observations)
	ranks, yoy := FinalizeDistricts(aggregates)

	rows := make([]dbpkg.DistrictComplianceIndex, 0, len(aggregates))
	for i, a := range aggregates {
		rows = append(rows, dbpkg.DistrictComplianceIndex{
			District:              a.District,
			AcademicYear:          a.AcademicYear,
			TotalSchools:          a.TotalSchools,
			AvgRiskScore:          a.AvgRiskScore,
			PctHighCritical:       a.PctHighCritical,
			TotalClassroomDeficit: a.TotalClassroomDeficit,
			TotalTeacherDeficit:   a.TotalTeacherDeficit,
			TotalEnrolment:        a.TotalEnrolment,
			AvgClassroomCondition: a.AvgClassroomCondition,
			YoYRiskImprovement:    yoy[i],
			DistrictRank:          ranks[i],
			ComplianceGrade:       a.ComplianceGrade,
		})
	}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&dbpkg.DistrictComplianceIndex{}).Error; err != nil {
			return err
		}
		return tx.CreateInBatches(rows, 500).Error
	})
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}
