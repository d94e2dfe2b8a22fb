package pipeline

import (
	"fmt"
	"sort"

	"gorm.io/gorm"

	dbpkg "schoolsight/internal/db"
)

// Priority bucket labels.
const (
	BucketTop5     = "TOP_5"
	BucketTop10    = "TOP_10"
	BucketTop20    = "TOP_20"
	BucketStandard = "STANDARD"
)

// rankable is one scored entity inside a ranking cohort.
type rankable struct {
	ID    string
	Score float64
}

// competitionRank assigns 1-based competition ranks by descending score:
// ties share a rank and the next distinct score skips past them (1, 2, 2, 4).
// Ties are ordered by ID so output is deterministic. The returned map is
// keyed by ID.
func competitionRank(rows []rankable) map[string]int {
	sorted := make([]rankable, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].ID < sorted[j].ID
	})

	ranks := make(map[string]int, len(sorted))
	for i, row := range sorted {
		if i > 0 && row.Score == sorted[i-1].Score {
			ranks[row.ID] = ranks[sorted[i-1].ID]
			continue
		}
		ranks[row.ID] = i + 1
	}
	return ranks
}

// PercentileBucket maps a state rank to its priority bucket. The percentile
// of rank r among n schools is (r-1)/(n-1); a cohort of one is percentile 0.
// Thresholds apply first-match-wins.
func PercentileBucket(rank, n int) string {
	var pct float64
	if n > 1 {
		pct = float64(rank-1) / float64(n-1)
	}
	switch {
	case pct <= 0.05:
		return BucketTop5
	case pct <= 0.10:
		return BucketTop10
	case pct <= 0.20:
		return BucketTop20
	default:
		return BucketStandard
	}
}

// historyEntry is one observed school-year with its risk level, used for the
// persistent high-risk lookback.
type historyEntry struct {
	Year  string
	Level string
}

// persistentHighRisk reports whether the school has been HIGH or CRITICAL
// for the target year and its two immediately preceding observed years, with
// no calendar gaps between the three.
func persistentHighRisk(history []historyEntry, year string) bool {
	idx := -1
	for i, h := range history {
		if h.Year == year {
			idx = i
			break
		}
	}
	if idx < 2 {
		return false
	}
	window := history[idx-2 : idx+1]
	for _, h := range window {
		if !IsElevated(h.Level) {
			return false
		}
	}
	return consecutiveYears(window[0].Year, window[1].Year) &&
		consecutiveYears(window[1].Year, window[2].Year)
}

// runPriorityStage rebuilds the priority index for one year: state and
// district competition ranks over risk score, percentile buckets, and the
// persistent high-risk flag from the three-year lookback.
func (r *Runner) runPriorityStage(year string) (int64, error) {
	var infra []dbpkg.InfrastructureRecord
	if err := r.db.Where("academic_year = ?", year).Find(&infra).Error; err != nil {
		return 0, err
	}
	if len(infra) == 0 {
		return 0, fmt.Errorf("priority %s: %w", year, ErrNoFacts)
	}
	// Unscored rows are orphan facts the risk stage skipped; they rank
	// nowhere. Only a year with no scored rows at all means the risk stage
	// has not run.
	scored := infra[:0]
	for _, rec := range infra {
		if rec.RiskScore != nil {
			scored = append(scored, rec)
		}
	}
	if len(scored) == 0 {
		return 0, fmt.Errorf("priority %s: no risk scores: %w", year, ErrStageNotReady)
	}
	infra = scored

	var schools []dbpkg.School
	if err := r.db.Select("school_id", "district").Find(&schools).Error; err != nil {
		return 0, err
	}
	districtOf := make(map[string]string, len(schools))
	for _, s := range schools {
		districtOf[s.SchoolID] = s.District
	}

	// Risk level history per school across all observed years, for the
	// persistence lookback.
	var allInfra []dbpkg.InfrastructureRecord
	if err := r.db.Select("school_id", "academic_year", "risk_level").
		Order("school_id, academic_year").Find(&allInfra).Error; err != nil {
		return 0, err
	}
	histories := make(map[string][]historyEntry)
	for _, rec := range allInfra {
		if rec.RiskLevel == "" {
			continue
		}
		histories[rec.SchoolID] = append(histories[rec.SchoolID],
			historyEntry{Year: rec.AcademicYear, Level: rec.RiskLevel})
	}

	state := make([]rankable, 0, len(infra))
	byDistrict := make(map[string][]rankable)
	for _, rec := range infra {
		row := rankable{ID: rec.SchoolID, Score: *rec.RiskScore}
		state = append(state, row)
		d := districtOf[rec.SchoolID]
		byDistrict[d] = append(byDistrict[d], row)
	}

	stateRanks := competitionRank(state)
	districtRanks := make(map[string]int, len(infra))
	for _, cohort := range byDistrict {
		for id, rank := range competitionRank(cohort) {
			districtRanks[id] = rank
		}
	}

	n := len(state)
	rows := make([]dbpkg.PriorityIndex, 0, len(infra))
	for _, rec := range infra {
		rank := stateRanks[rec.SchoolID]
		rows = append(rows, dbpkg.PriorityIndex{
			SchoolID:           rec.SchoolID,
			AcademicYear:       year,
			RiskScore:          *rec.RiskScore,
			StateRank:          rank,
			DistrictRank:       districtRanks[rec.SchoolID],
			PriorityBucket:     PercentileBucket(rank, n),
			PersistentHighRisk: persistentHighRisk(histories[rec.SchoolID], year),
		})
	}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("academic_year = ?", year).
			Delete(&dbpkg.PriorityIndex{}).Error; err != nil {
			return err
		}
		return tx.CreateInBatches(rows, 500).Error
	})
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}
