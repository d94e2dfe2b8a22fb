package pipeline

import (
	"fmt"
	"math"
	"sort"

	"gorm.io/gorm"

	dbpkg "schoolsight/internal/db"
)

// Trend direction labels.
const (
	TrendBaseline      = "BASELINE"
	TrendImproving     = "IMPROVING"
	TrendStable        = "STABLE"
	TrendDeteriorating = "DETERIORATING"
)

// Year-over-year movement thresholds.
const (
	trendBand           = 0.10
	volatilityThreshold = 0.25
)

// TrendObservation is one scored school-year feeding the trend builder.
type TrendObservation struct {
	SchoolID     string
	AcademicYear string
	RiskScore    float64
	RiskLevel    string
}

// TrendPoint is the derived trend row for one school-year.
type TrendPoint struct {
	SchoolID          string
	AcademicYear      string
	RiskScore         float64
	PrevRiskScore     *float64
	RiskDelta         *float64
	TrendDirection    string
	YearSequence      int
	ChronicRiskFlag   bool
	VolatileFlag      bool
	CumulativeAvgRisk float64
}

// trendDirection classifies a year-over-year risk delta. A nil delta marks
// the school's first observed year.
func trendDirection(delta *float64) string {
	switch {
	case delta == nil:
		return TrendBaseline
	case *delta < -trendBand:
		return TrendImproving
	case *delta > trendBand:
		return TrendDeteriorating
	default:
		return TrendStable
	}
}

// ComputeTrends walks each school's full observed history in chronological
// order and derives per-year deltas, direction, sequence number, running
// average, chronic-risk and volatility flags.
func ComputeTrends(observations []TrendObservation) []TrendPoint {
	bySchool := make(map[string][]TrendObservation)
	for _, o := range observations {
		bySchool[o.SchoolID] = append(bySchool[o.SchoolID], o)
	}
	ids := make([]string, 0, len(bySchool))
	for id := range bySchool {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []TrendPoint
	for _, id := range ids {
		history := bySchool[id]
		sort.Slice(history, func(i, j int) bool {
			return history[i].AcademicYear < history[j].AcademicYear
		})

		var sum float64
		var prevDelta *float64
		points := make([]TrendPoint, 0, len(history))
		for i, obs := range history {
			var prevScore, delta *float64
			if i > 0 {
				p := history[i-1].RiskScore
				d := round4(obs.RiskScore - p)
				prevScore, delta = &p, &d
			}

			sum += obs.RiskScore
			volatile := (delta != nil && math.Abs(*delta) > volatilityThreshold) ||
				(prevDelta != nil && math.Abs(*prevDelta) > volatilityThreshold)

			points = append(points, TrendPoint{
				SchoolID:          id,
				AcademicYear:      obs.AcademicYear,
				RiskScore:         obs.RiskScore,
				PrevRiskScore:     prevScore,
				RiskDelta:         delta,
				TrendDirection:    trendDirection(delta),
				YearSequence:      i + 1,
				VolatileFlag:      volatile,
				CumulativeAvgRisk: round4(sum / float64(i+1)),
			})
			prevDelta = delta
		}

		// Chronic flag needs the whole history in place first: three
		// consecutive elevated years ending at the row's year.
		entries := make([]historyEntry, len(history))
		for i, obs := range history {
			entries[i] = historyEntry{Year: obs.AcademicYear, Level: obs.RiskLevel}
		}
		for i := range points {
			points[i].ChronicRiskFlag = persistentHighRisk(entries, points[i].AcademicYear)
		}
		out = append(out, points...)
	}
	return out
}

// runTrendStage rebuilds the full risk trend table from every scored
// school-year. Runs over the whole history so late fact corrections ripple
// through deltas, sequences and flags.
func (r *Runner) runTrendStage() (int64, error) {
	var infra []dbpkg.InfrastructureRecord
	if err := r.db.Select("school_id", "academic_year", "risk_score", "risk_level").
		Order("school_id, academic_year").Find(&infra).Error; err != nil {
		return 0, err
	}
	if len(infra) == 0 {
		return 0, fmt.Errorf("trend: %w", ErrNoFacts)
	}

	observations := make([]TrendObservation, 0, len(infra))
	for _, rec := range infra {
		// Orphan school-years the risk stage skipped have no score and no
		// trend point.
		if rec.RiskScore == nil {
			continue
		}
		observations = append(observations, TrendObservation{
			SchoolID:     rec.SchoolID,
			AcademicYear: rec.AcademicYear,
			RiskScore:    *rec.RiskScore,
			RiskLevel:    rec.RiskLevel,
		})
	}
	if len(observations) == 0 {
		return 0, fmt.Errorf("trend: no risk scores: %w", ErrStageNotReady)
	}
	points := ComputeTrends(observations)

	rows := make([]dbpkg.RiskTrend, 0, len(points))
	for _, p := range points {
		rows = append(rows, dbpkg.RiskTrend{
			SchoolID:          p.SchoolID,
			AcademicYear:      p.AcademicYear,
			RiskScore:         p.RiskScore,
			PrevRiskScore:     p.PrevRiskScore,
			RiskDelta:         p.RiskDelta,
			TrendDirection:    p.TrendDirection,
			YearSequence:      p.YearSequence,
			ChronicRiskFlag:   p.ChronicRiskFlag,
			VolatileFlag:      p.VolatileFlag,
			CumulativeAvgRisk: p.CumulativeAvgRisk,
		})
	}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&dbpkg.RiskTrend{}).Error; err != nil {
			return err
		}
		return tx.CreateInBatches(rows, 500).Error
	})
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}
