package pipeline

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Samagra Shiksha capacity norms, keyed by school category (grade span).
// The classroom and PTR tables look alike but differ for categories 5, 7,
// 8, 10 and 11: the classroom table follows the infrastructure norms while
// the PTR table blends RTE and RMSA ratios. The asymmetry is deliberate;
// do not unify the two tables.
var classroomNorms = map[string]int{
	"1": 30, "2": 30, "3": 30,
	"4": 35, "5": 35,
	"6": 30, "7": 35,
	"8": 40, "10": 40, "11": 40,
}

var ptrNorms = map[string]int{
	"1": 30, "2": 30, "3": 30,
	"4": 35,
	"5": 30, "6": 30, "7": 30,
	"8": 30, "10": 30, "11": 30,
}

// defaultNorm is applied to unmapped categories: the smallest (most
// conservative) norm, so requirements are never underestimated.
const defaultNorm = 30

// ClassroomNorm returns the students-per-classroom norm for a category.
func ClassroomNorm(category string) int {
	if n, ok := classroomNorms[strings.TrimSpace(category)]; ok {
		return n
	}
	return defaultNorm
}

// PTRNorm returns the pupil-teacher ratio norm for a category.
func PTRNorm(category string) int {
	if n, ok := ptrNorms[strings.TrimSpace(category)]; ok {
		return n
	}
	return defaultNorm
}

// RequiredCapacity is ceil(enrolment / norm). Zero or negative enrolment
// requires nothing.
func RequiredCapacity(enrolment, norm int) int {
	if enrolment <= 0 || norm <= 0 {
		return 0
	}
	return (enrolment + norm - 1) / norm
}

// Shortfall is max(required - current, 0). Gaps are never negative.
func Shortfall(required, current int) int {
	if gap := required - current; gap > 0 {
		return gap
	}
	return 0
}

// Composite risk score weights and bounds.
const (
	teacherWeight   = 0.45
	classroomWeight = 0.35
	growthWeight    = 0.20
	growthCap       = 0.50
)

// Risk level labels.
const (
	RiskLow      = "LOW"
	RiskModerate = "MODERATE"
	RiskHigh     = "HIGH"
	RiskCritical = "CRITICAL"
)

// RiskLevelFor classifies a composite score. Boundaries are exclusive on
// the lower side: exactly 0.75 is HIGH, not CRITICAL.
func RiskLevelFor(score float64) string {
	switch {
	case score > 0.75:
		return RiskCritical
	case score > 0.50:
		return RiskHigh
	case score > 0.20:
		return RiskModerate
	default:
		return RiskLow
	}
}

// IsElevated reports whether a risk level is HIGH or CRITICAL.
func IsElevated(level string) bool {
	return level == RiskHigh || level == RiskCritical
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }

// yearStart parses the leading calendar year of a "YYYY-YY" academic-year
// label. Returns 0 for malformed labels.
func yearStart(year string) int {
	head, _, ok := strings.Cut(year, "-")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(head)
	if err != nil {
		return 0
	}
	return n
}

// consecutiveYears reports whether cur immediately follows prev on the
// academic calendar ("2021-22" follows "2020-21").
func consecutiveYears(prev, cur string) bool {
	p, c := yearStart(prev), yearStart(cur)
	return p > 0 && c == p+1
}

// addYears shifts a "YYYY-YY" label k years forward, e.g. "2023-24" + 2 =
// "2025-26". Malformed labels are returned unchanged.
func addYears(year string, k int) string {
	head, tail, ok := strings.Cut(year, "-")
	if !ok {
		return year
	}
	start, err := strconv.Atoi(head)
	if err != nil {
		return year
	}
	end, err := strconv.Atoi(tail)
	if err != nil {
		return year
	}
	return fmt.Sprintf("%d-%02d", start+k, (end+k)%100)
}
