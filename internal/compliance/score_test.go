package compliance

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/domain"
)

func genVerdict() gopter.Gen {
	return gen.OneConstOf(domain.StatusCompliant, domain.StatusNonCompliant, domain.StatusExcusedWeather)
}

func genVerdicts() gopter.Gen {
	return gen.SliceOf(genVerdict())
}

func TestAggregate_LateDeliveryScenario(t *testing.T) {
	status := DefaultPolicy().Classify("delivery_time", 6, ptr(5))
	require.Equal(t, domain.StatusNonCompliant, status)

	score, err := Aggregate(DefaultScore, []domain.Status{status})
	require.NoError(t, err)
	assert.Equal(t, 90, score)
}

func TestAggregate_ClampsAtZero(t *testing.T) {
	verdicts := make([]domain.Status, 15)
	for i := range verdicts {
		verdicts[i] = domain.StatusNonCompliant
	}
	score, err := Aggregate(30, verdicts)
	require.NoError(t, err)
	assert.Equal(t, 0, score)
}

func TestAggregate_RejectsOutOfBoundsInput(t *testing.T) {
	_, err := Aggregate(101, nil)
	assert.ErrorIs(t, err, ErrScoreBoundsViolation)

	_, err = Aggregate(-1, []domain.Status{domain.StatusCompliant})
	assert.ErrorIs(t, err, ErrScoreBoundsViolation)
}

func TestAggregate_UnknownVerdict(t *testing.T) {
	score, err := Aggregate(80, []domain.Status{domain.StatusNonCompliant, "pending"})
	assert.ErrorIs(t, err, ErrInvalidMetricInput)
	assert.Equal(t, 80, score, "score is left at the input value on error")
}

func TestRecompute_ExcusedRecordRestoresScore(t *testing.T) {
	history := []domain.Status{domain.StatusCompliant, domain.StatusNonCompliant, domain.StatusNonCompliant}
	before, err := Recompute(history)
	require.NoError(t, err)
	assert.Equal(t, 80, before)

	history[2] = domain.StatusExcusedWeather
	after, err := Recompute(history)
	require.NoError(t, err)
	assert.Equal(t, 90, after)
}

func TestRescore_KeepsBaseline(t *testing.T) {
	rec := func(id int64, st domain.Status) domain.ComplianceRecord {
		return domain.ComplianceRecord{ID: id, Status: st}
	}
	// score set by hand to 50 after records 1 and 2, then one late delivery
	sup := domain.Supplier{ComplianceScore: 40, ScoreBaseline: 50, BaselineRecordID: 2}
	history := []domain.ComplianceRecord{
		rec(1, domain.StatusNonCompliant),
		rec(2, domain.StatusNonCompliant),
		rec(3, domain.StatusNonCompliant),
	}
	score, err := Rescore(sup, history)
	require.NoError(t, err)
	assert.Equal(t, 40, score)

	history[2].Status = domain.StatusExcusedWeather
	score, err = Rescore(sup, history)
	require.NoError(t, err)
	assert.Equal(t, 50, score, "only the excused record's penalty comes back")

	history[0].Status = domain.StatusExcusedWeather
	score, err = Rescore(sup, history)
	require.NoError(t, err)
	assert.Equal(t, 50, score, "records before the baseline are already in it")
}

func TestRiskFor(t *testing.T) {
	tests := []struct {
		score int
		want  domain.RiskTier
	}{
		{100, domain.RiskLow},
		{80, domain.RiskLow},
		{79, domain.RiskMedium},
		{60, domain.RiskMedium},
		{59, domain.RiskHigh},
		{0, domain.RiskHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RiskFor(tt.score), "score %d", tt.score)
	}
}

func TestScoreProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("aggregate stays within [0, 100]", prop.ForAll(
		func(start int, verdicts []domain.Status) bool {
			score, err := Aggregate(start, verdicts)
			return err == nil && score >= MinScore && score <= MaxScore
		},
		gen.IntRange(MinScore, MaxScore),
		genVerdicts(),
	))

	properties.Property("incremental aggregation equals full recompute", prop.ForAll(
		func(verdicts []domain.Status) bool {
			incremental := DefaultScore
			for _, v := range verdicts {
				next, err := Aggregate(incremental, []domain.Status{v})
				if err != nil {
					return false
				}
				incremental = next
			}
			full, err := Recompute(verdicts)
			return err == nil && full == incremental
		},
		genVerdicts(),
	))

	properties.Property("split batches equal one batch", prop.ForAll(
		func(start int, a, b []domain.Status) bool {
			mid, err1 := Aggregate(start, a)
			split, err2 := Aggregate(mid, b)
			whole, err3 := Aggregate(start, append(append([]domain.Status{}, a...), b...))
			return err1 == nil && err2 == nil && err3 == nil && split == whole
		},
		gen.IntRange(MinScore, MaxScore),
		genVerdicts(),
		genVerdicts(),
	))

	properties.Property("neutral verdicts never reduce the score", prop.ForAll(
		func(start int, v domain.Status) bool {
			if v == domain.StatusNonCompliant {
				return true
			}
			score, err := Step(start, v)
			return err == nil && score == start
		},
		gen.IntRange(MinScore, MaxScore),
		genVerdict(),
	))

	properties.Property("non-compliant subtracts exactly the penalty, clamped at zero", prop.ForAll(
		func(start int) bool {
			score, err := Step(start, domain.StatusNonCompliant)
			want := start - Penalty
			if want < 0 {
				want = 0
			}
			return err == nil && score == want
		},
		gen.IntRange(MinScore, MaxScore),
	))

	properties.TestingRun(t)
}
