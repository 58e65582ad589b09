package compliance

import (
	"errors"
	"fmt"

	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/domain"
)

const (
	MinScore = 0
	MaxScore = 100
	// DefaultScore is the starting score of a supplier with no history.
	DefaultScore = 100
	// Penalty is subtracted for each non-compliant verdict.
	Penalty = 10
)

var (
	errMissingMetric = errors.New("metric name is required")
	errMissingResult = errors.New("numeric result is required")
)

func clamp(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// CheckBounds fails with ScoreBoundsViolation when score is outside [0, 100].
func CheckBounds(score int) error {
	if score < MinScore || score > MaxScore {
		return newError(KindScoreBoundsViolation, "score", fmt.Errorf("score %d outside [%d, %d]", score, MinScore, MaxScore))
	}
	return nil
}

// Step applies a single verdict to score. Compliant and excused-weather
// verdicts are neutral.
func Step(score int, v domain.Status) (int, error) {
	switch v {
	case domain.StatusNonCompliant:
		return clamp(score - Penalty), nil
	case domain.StatusCompliant, domain.StatusExcusedWeather:
		return clamp(score), nil
	}
	return score, newError(KindInvalidMetricInput, "score", fmt.Errorf("unknown verdict %q", v))
}

// Aggregate applies verdicts in order to an existing score. The existing score
// must already be within bounds; the caller supplies it from a single
// authoritative read and applies each verdict exactly once.
func Aggregate(existing int, verdicts []domain.Status) (int, error) {
	if err := CheckBounds(existing); err != nil {
		return existing, err
	}
	score := existing
	for _, v := range verdicts {
		next, err := Step(score, v)
		if err != nil {
			return existing, err
		}
		score = next
	}
	if err := CheckBounds(score); err != nil {
		return existing, err
	}
	return score, nil
}

// Recompute derives the score from a supplier's full verdict history starting
// at DefaultScore. It yields the same value as applying the history one
// verdict at a time with Aggregate.
func Recompute(history []domain.Status) (int, error) {
	return Aggregate(DefaultScore, history)
}

// Rescore rebuilds a supplier's score from its baseline and the verdicts of
// the records created after the baseline was set. Excusing a record
// therefore gives back exactly the penalty that record cost.
func Rescore(sup domain.Supplier, history []domain.ComplianceRecord) (int, error) {
	var since []domain.Status
	for _, r := range history {
		if r.ID > sup.BaselineRecordID {
			since = append(since, r.Status)
		}
	}
	return Aggregate(sup.ScoreBaseline, since)
}

// RiskFor maps a score to its tier.
func RiskFor(score int) domain.RiskTier {
	switch {
	case score >= 80:
		return domain.RiskLow
	case score >= 60:
		return domain.RiskMedium
	default:
		return domain.RiskHigh
	}
}
