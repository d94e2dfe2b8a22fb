package pipeline

import (
	"errors"
	"fmt"
	"math"

	"gorm.io/gorm"

	dbpkg "schoolsight/internal/db"
)

// MLModelVersion tags rows written by the model-based forecaster so readers
// can tell estimator generations apart.
const MLModelVersion = "linear-v1"

var errSingularModel = errors.New("design matrix is singular")

// growthFeatures builds the regressor vector for predicting a school's next
// year-over-year growth: intercept, growth momentum (its most recent
// observed transition), current deficit ratios, and coarse category
// indicators separating primary from secondary grade spans.
func growthFeatures(momentum, classroomDeficit, teacherDeficit float64, category string) []float64 {
	var primary, secondary float64
	switch category {
	case "1", "2", "3", "6":
		primary = 1
	case "8", "10", "11":
		secondary = 1
	}
	return []float64{1, momentum, classroomDeficit, teacherDeficit, primary, secondary}
}

// fitLinearModel solves the least-squares problem via the normal equations
// with Gaussian elimination and partial pivoting. Returns errSingularModel
// when the observations do not pin down the coefficients.
func fitLinearModel(features [][]float64, targets []float64) ([]float64, error) {
	if len(features) == 0 || len(features) != len(targets) {
		return nil, errSingularModel
	}
	p := len(features[0])

	// Build X'X and X'y.
	xtx := make([][]float64, p)
	for i := range xtx {
		xtx[i] = make([]float64, p)
	}
	xty := make([]float64, p)
	for row, x := range features {
		for i := 0; i < p; i++ {
			for j := 0; j < p; j++ {
				xtx[i][j] += x[i] * x[j]
			}
			xty[i] += x[i] * targets[row]
		}
	}

	// Forward elimination with partial pivoting.
	for col := 0; col < p; col++ {
		pivot := col
		for r := col + 1; r < p; r++ {
			if math.Abs(xtx[r][col]) > math.Abs(xtx[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(xtx[pivot][col]) < 1e-12 {
			return nil, errSingularModel
		}
		xtx[col], xtx[pivot] = xtx[pivot], xtx[col]
		xty[col], xty[pivot] = xty[pivot], xty[col]

		for r := col + 1; r < p; r++ {
			factor := xtx[r][col] / xtx[col][col]
			for c := col; c < p; c++ {
				xtx[r][c] -= factor * xtx[col][c]
			}
			xty[r] -= factor * xty[col]
		}
	}

	// Back substitution.
	beta := make([]float64, p)
	for i := p - 1; i >= 0; i-- {
		sum := xty[i]
		for j := i + 1; j < p; j++ {
			sum -= xtx[i][j] * beta[j]
		}
		beta[i] = sum / xtx[i][i]
	}
	return beta, nil
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// mlHistory couples a school's enrolment series with the deficit ratios of
// its latest scored year.
type mlHistory struct {
	SchoolHistory
	ClassroomDeficit float64
	TeacherDeficit   float64
}

// transitionGrowth returns the growth rate of the transition ending at
// index i, or (0, false) when the starting enrolment is non-positive.
func transitionGrowth(enrolments []int, i int) (float64, bool) {
	if i < 1 || enrolments[i-1] <= 0 {
		return 0, false
	}
	return float64(enrolments[i]-enrolments[i-1]) / float64(enrolments[i-1]), true
}

// PredictGrowth fits the panel model over every observed transition and
// predicts each school's next growth rate. Predictions are shifted so their
// mean matches the mean growth seen in training, then clipped like the
// moving-average estimate. Schools the model cannot cover fall back to the
// moving-average estimate.
func PredictGrowth(histories []mlHistory) map[string]float64 {
	var features [][]float64
	var targets []float64
	for _, h := range histories {
		for i := 1; i < len(h.Enrolments); i++ {
			target, ok := transitionGrowth(h.Enrolments, i)
			if !ok {
				continue
			}
			momentum, _ := transitionGrowth(h.Enrolments, i-1)
			features = append(features,
				growthFeatures(momentum, h.ClassroomDeficit, h.TeacherDeficit, h.Category))
			targets = append(targets, target)
		}
	}

	out := make(map[string]float64, len(histories))
	beta, err := fitLinearModel(features, targets)
	if err != nil {
		for _, h := range histories {
			out[h.SchoolID] = EstimateGrowth(h.Enrolments)
		}
		return out
	}

	var trainMean float64
	for _, t := range targets {
		trainMean += t
	}
	trainMean /= float64(len(targets))

	raw := make(map[string]float64, len(histories))
	var predSum float64
	var predN int
	for _, h := range histories {
		n := len(h.Enrolments)
		momentum, ok := transitionGrowth(h.Enrolments, n-1)
		if n < 2 || !ok {
			continue
		}
		pred := dot(beta,
			growthFeatures(momentum, h.ClassroomDeficit, h.TeacherDeficit, h.Category))
		raw[h.SchoolID] = pred
		predSum += pred
		predN++
	}

	var bias float64
	if predN > 0 {
		bias = trainMean - predSum/float64(predN)
	}
	for _, h := range histories {
		pred, ok := raw[h.SchoolID]
		if !ok {
			out[h.SchoolID] = EstimateGrowth(h.Enrolments)
			continue
		}
		out[h.SchoolID] = math.Max(-growthClip, math.Min(growthClip, pred+bias))
	}
	return out
}

// runMLForecastStage rebuilds the model-based forecast table with the same
// horizon contract as the moving-average forecaster.
func (r *Runner) runMLForecastStage() (int64, error) {
	histories, err := r.loadSchoolHistories()
	if err != nil {
		return 0, err
	}
	if len(histories) == 0 {
		return 0, fmt.Errorf("ml forecast: %w", ErrNoFacts)
	}

	deficits, err := r.loadLatestDeficits()
	if err != nil {
		return 0, err
	}
	enriched := make([]mlHistory, 0, len(histories))
	for _, h := range histories {
		d := deficits[h.SchoolID]
		enriched = append(enriched, mlHistory{
			SchoolHistory:    h,
			ClassroomDeficit: d[0],
			TeacherDeficit:   d[1],
		})
	}
	growthBy := PredictGrowth(enriched)

	rows := make([]dbpkg.MLEnrolmentForecast, 0, len(histories)*forecastHorizonYears)
	for _, h := range histories {
		for _, f := range buildHorizons(h, growthBy[h.SchoolID]) {
			rows = append(rows, dbpkg.MLEnrolmentForecast{
				SchoolID:               f.SchoolID,
				BaseYear:               f.BaseYear,
				ForecastYear:           f.ForecastYear,
				YearsAhead:             f.YearsAhead,
				BaseEnrolment:          f.BaseEnrolment,
				GrowthRate:             round4(growthBy[h.SchoolID]),
				ProjectedEnrolment:     f.ProjectedEnrolment,
				ProjectedClassroomsReq: f.ProjectedClassroomsReq,
				ProjectedTeachersReq:   f.ProjectedTeachersReq,
				CurrentClassrooms:      f.CurrentClassrooms,
				CurrentTeachers:        f.CurrentTeachers,
				ProjectedClassroomGap:  f.ProjectedClassroomGap,
				ProjectedTeacherGap:    f.ProjectedTeacherGap,
				SchoolCategory:         f.Category,
				ModelVersion:           MLModelVersion,
			})
		}
	}

	err = r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&dbpkg.MLEnrolmentForecast{}).Error; err != nil {
			return err
		}
		return tx.CreateInBatches(rows, 500).Error
	})
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

// loadLatestDeficits returns each school's [classroom, teacher] deficit
// ratios from its latest scored year, zero when not yet scored.
func (r *Runner) loadLatestDeficits() (map[string][2]float64, error) {
	var infra []dbpkg.InfrastructureRecord
	if err := r.db.Select("school_id", "academic_year",
		"classroom_deficit_ratio", "teacher_deficit_ratio").
		Order("school_id, academic_year").Find(&infra).Error; err != nil {
		return nil, err
	}

	// Rows arrive in year order, so the last write per school wins.
	out := make(map[string][2]float64)
	for _, rec := range infra {
		var d [2]float64
		if rec.ClassroomDeficitRatio != nil {
			d[0] = *rec.ClassroomDeficitRatio
		}
		if rec.TeacherDeficitRatio != nil {
			d[1] = *rec.TeacherDeficitRatio
		}
		out[rec.SchoolID] = d
	}
	return out, nil
}
