package pipeline

import (
	"fmt"
	"math"
	"sort"

	"gorm.io/gorm"

	dbpkg "schoolsight/internal/db"
)

// Forecast horizon and growth bounds.
const (
	forecastHorizonYears = 3
	growthClip           = 0.30
)

// wmaWeights favour the most recent transition 3:2:1.
var wmaWeights = [forecastHorizonYears]float64{3, 2, 1}

// SchoolHistory is one school's observed enrolment series plus its current
// capacity, feeding the forecaster.
type SchoolHistory struct {
	SchoolID string
	Category string

	// Years and Enrolments are parallel, in chronological order.
	Years      []string
	Enrolments []int

	CurrentClassrooms int
	CurrentTeachers   int
}

// ForecastRow is one projected horizon for one school.
type ForecastRow struct {
	SchoolID     string
	Category     string
	BaseYear     string
	ForecastYear string
	YearsAhead   int

	BaseEnrolment int
	GrowthRate    float64

	ProjectedEnrolment     int
	ProjectedClassroomsReq int
	ProjectedTeachersReq   int
	CurrentClassrooms      int
	CurrentTeachers        int
	ProjectedClassroomGap  int
	ProjectedTeacherGap    int
}

// EstimateGrowth computes the recency-weighted mean of the last (up to
// three) year-over-year growth rates, weighted 3:2:1 newest first. A
// transition with a non-positive starting enrolment is skipped and its
// weight drops out of the denominator. Clipped to +/-30%.
func EstimateGrowth(enrolments []int) float64 {
	var num, den float64
	for i := 0; i < forecastHorizonYears; i++ {
		to := len(enrolments) - 1 - i
		from := to - 1
		if from < 0 {
			break
		}
		start := enrolments[from]
		if start <= 0 {
			continue
		}
		w := wmaWeights[i]
		num += w * float64(enrolments[to]-start) / float64(start)
		den += w
	}
	if den == 0 {
		return 0
	}
	g := num / den
	return math.Max(-growthClip, math.Min(growthClip, g))
}

// ProjectEnrolment compounds a growth rate k years out from a base
// enrolment, rounded to the nearest student and floored at zero.
func ProjectEnrolment(base int, growth float64, k int) int {
	projected := math.Round(float64(base) * math.Pow(1+growth, float64(k)))
	if projected < 0 {
		return 0
	}
	return int(projected)
}

// BuildForecasts produces the 1, 2 and 3 year horizon rows for one school
// from its own latest observed year. Requirements at each horizon reuse the
// capacity norms against the projected enrolment; gaps compare them to the
// school's capacity as of the base year.
func BuildForecasts(h SchoolHistory) []ForecastRow {
	if len(h.Enrolments) == 0 {
		return nil
	}
	return buildHorizons(h, EstimateGrowth(h.Enrolments))
}

// buildHorizons projects the three horizons for a school under a given
// growth rate. Shared by the moving-average and model-based forecasters.
func buildHorizons(h SchoolHistory, growth float64) []ForecastRow {
	if len(h.Enrolments) == 0 {
		return nil
	}
	baseYear := h.Years[len(h.Years)-1]
	base := h.Enrolments[len(h.Enrolments)-1]

	rows := make([]ForecastRow, 0, forecastHorizonYears)
	for k := 1; k <= forecastHorizonYears; k++ {
		projected := ProjectEnrolment(base, growth, k)
		crReq := RequiredCapacity(projected, ClassroomNorm(h.Category))
		trReq := RequiredCapacity(projected, PTRNorm(h.Category))

		rows = append(rows, ForecastRow{
			SchoolID:               h.SchoolID,
			Category:               h.Category,
			BaseYear:               baseYear,
			ForecastYear:           addYears(baseYear, k),
			YearsAhead:             k,
			BaseEnrolment:          base,
			GrowthRate:             round4(growth),
			ProjectedEnrolment:     projected,
			ProjectedClassroomsReq: crReq,
			ProjectedTeachersReq:   trReq,
			CurrentClassrooms:      h.CurrentClassrooms,
			CurrentTeachers:        h.CurrentTeachers,
			ProjectedClassroomGap:  Shortfall(crReq, h.CurrentClassrooms),
			ProjectedTeacherGap:    Shortfall(trReq, h.CurrentTeachers),
		})
	}
	return rows
}

// runForecastStage rebuilds the enrolment forecast table: three projected
// horizons per school, anchored to each school's own latest observed year.
func (r *Runner) runForecastStage() (int64, error) {
	histories, err := r.loadSchoolHistories()
	if err != nil {
		return 0, err
	}
	if len(histories) == 0 {
		return 0, fmt.Errorf("forecast: %w", ErrNoFacts)
	}

	rows := make([]dbpkg.EnrolmentForecast, 0, len(histories)*forecastHorizonYears)
	for _, h := range histories {
		for _, f := range BuildForecasts(h) {
			rows = append(rows, dbpkg.EnrolmentForecast{
				SchoolID:               f.SchoolID,
				BaseYear:               f.BaseYear,
				ForecastYear:           f.ForecastYear,
				YearsAhead:             f.YearsAhead,
				BaseEnrolment:          f.BaseEnrolment,
				GrowthRate:             f.GrowthRate,
				ProjectedEnrolment:     f.ProjectedEnrolment,
				ProjectedClassroomsReq: f.ProjectedClassroomsReq,
				ProjectedTeachersReq:   f.ProjectedTeachersReq,
				CurrentClassrooms:      f.CurrentClassrooms,
				CurrentTeachers:        f.CurrentTeachers,
				ProjectedClassroomGap:  f.ProjectedClassroomGap,
				ProjectedTeacherGap:    f.ProjectedTeacherGap,
				SchoolCategory:         f.Category,
			})
		}
	}

	err = r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&dbpkg.EnrolmentForecast{}).Error; err != nil {
			return err
		}
		return tx.CreateInBatches(rows, 500).Error
	})
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

// loadSchoolHistories assembles each school's chronological enrolment series
// plus its capacity in its latest observed year, ordered by school ID.
func (r *Runner) loadSchoolHistories() ([]SchoolHistory, error) {
	var metrics []dbpkg.YearlyMetric
	if err := r.db.Order("school_id, academic_year").Find(&metrics).Error; err != nil {
		return nil, err
	}

	var schools []dbpkg.School
	if err := r.db.Select("school_id", "category").Find(&schools).Error; err != nil {
		return nil, err
	}
	categories := make(map[string]string, len(schools))
	for _, s := range schools {
		categories[s.SchoolID] = s.Category
	}

	var infra []dbpkg.InfrastructureRecord
	if err := r.db.Select("school_id", "academic_year", "usable_class_rooms").
		Find(&infra).Error; err != nil {
		return nil, err
	}
	var teachers []dbpkg.TeacherMetric
	if err := r.db.Select("school_id", "academic_year", "total_teachers").
		Find(&teachers).Error; err != nil {
		return nil, err
	}
	type key struct{ school, year string }
	usable := make(map[key]int, len(infra))
	for _, rec := range infra {
		usable[key{rec.SchoolID, rec.AcademicYear}] = rec.UsableClassRooms
	}
	headcount := make(map[key]int, len(teachers))
	for _, tm := range teachers {
		headcount[key{tm.SchoolID, tm.AcademicYear}] = tm.TotalTeachers
	}

	bySchool := make(map[string]*SchoolHistory)
	for _, ym := range metrics {
		h := bySchool[ym.SchoolID]
		if h == nil {
			h = &SchoolHistory{SchoolID: ym.SchoolID, Category: categories[ym.SchoolID]}
			bySchool[ym.SchoolID] = h
		}
		h.Years = append(h.Years, ym.AcademicYear)
		h.Enrolments = append(h.Enrolments, ym.TotalEnrolment)
	}

	out := make([]SchoolHistory, 0, len(bySchool))
	for _, h := range bySchool {
		latest := h.Years[len(h.Years)-1]
		h.CurrentClassrooms = usable[key{h.SchoolID, latest}]
		h.CurrentTeachers = headcount[key{h.SchoolID, latest}]
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SchoolID < out[j].SchoolID })
	return out, nil
}
