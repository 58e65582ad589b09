package compliance

import (
	"fmt"
	"math"
	"sort"

	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/domain"
)

// TopN caps the best-performer and at-risk lists.
const TopN = 3

// InsightInput is everything insight generation looks at. Suppliers should
// hold every supplier the caller knows about; records whose supplier is not
// among them are reported as orphans.
type InsightInput struct {
	Scope     domain.Scope
	Window    domain.Window
	Suppliers []domain.Supplier
	Records   []domain.ComplianceRecord
}

// ComputeAggregates derives the deterministic trend figures. Excused-weather
// records count toward neither side of the compliance rate.
func ComputeAggregates(in InsightInput) (domain.Aggregates, []domain.SkippedRecord, error) {
	known := make(map[int64]bool, len(in.Suppliers))
	var inScope []domain.Supplier
	for _, s := range in.Suppliers {
		known[s.ID] = true
		if in.Scope.Fleet() || s.ID == *in.Scope.SupplierID {
			if err := CheckBounds(s.ComplianceScore); err != nil {
				return domain.Aggregates{}, nil, newError(KindScoreBoundsViolation, "insights", fmt.Errorf("supplier %d: %w", s.ID, err))
			}
			inScope = append(inScope, s)
		}
	}
	scoped := make(map[int64]bool, len(inScope))
	for _, s := range inScope {
		scoped[s.ID] = true
	}

	agg := domain.Aggregates{
		Scope:          in.Scope.String(),
		WindowDays:     in.Window.Days(),
		SuppliersCount: len(inScope),
		MetricIssues:   []domain.MetricIssue{},
		BestPerformers: []domain.Standing{},
		AtRisk:         []domain.Standing{},
	}
	var skipped []domain.SkippedRecord
	issues := map[string]int{}

	for _, r := range in.Records {
		if !known[r.SupplierID] {
			skipped = append(skipped, domain.SkippedRecord{
				RecordID: r.ID, SupplierID: r.SupplierID,
				Kind: string(KindOrphanRecord), Reason: "record references unknown supplier",
			})
			continue
		}
		if !scoped[r.SupplierID] || !in.Window.Contains(r.DateRecorded) {
			continue
		}
		switch r.Status {
		case domain.StatusCompliant:
			agg.Compliant++
		case domain.StatusNonCompliant:
			agg.NonCompliant++
			issues[r.Metric]++
		case domain.StatusExcusedWeather:
			agg.Excused++
		default:
			skipped = append(skipped, domain.SkippedRecord{
				RecordID: r.ID, SupplierID: r.SupplierID,
				Kind: string(KindInvalidMetricInput), Reason: fmt.Sprintf("unknown status %q", r.Status),
			})
		}
	}

	agg.ComplianceRate = Rate(agg.Compliant, agg.NonCompliant)
	for metric, count := range issues {
		agg.MetricIssues = append(agg.MetricIssues, domain.MetricIssue{Metric: metric, Count: count})
	}
	sort.Slice(agg.MetricIssues, func(i, j int) bool {
		a, b := agg.MetricIssues[i], agg.MetricIssues[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Metric < b.Metric
	})

	standings := make([]domain.Standing, len(inScope))
	total := 0
	for i, s := range inScope {
		standings[i] = StandingOf(s)
		total += s.ComplianceScore
	}
	if len(inScope) > 0 {
		agg.AverageScore = round2(float64(total) / float64(len(inScope)))
	}

	sort.SliceStable(standings, func(i, j int) bool {
		if standings[i].Score != standings[j].Score {
			return standings[i].Score > standings[j].Score
		}
		return standings[i].Name < standings[j].Name
	})
	for _, s := range standings {
		if len(agg.BestPerformers) == TopN {
			break
		}
		agg.BestPerformers = append(agg.BestPerformers, s)
	}
	var risky []domain.Standing
	for _, s := range standings {
		if s.Risk == domain.RiskHigh {
			risky = append(risky, s)
		}
	}
	sort.SliceStable(risky, func(i, j int) bool {
		if risky[i].Score != risky[j].Score {
			return risky[i].Score < risky[j].Score
		}
		return risky[i].Name < risky[j].Name
	})
	if len(risky) > TopN {
		risky = risky[:TopN]
	}
	agg.AtRisk = append(agg.AtRisk, risky...)
	return agg, skipped, nil
}

// StandingOf returns the authoritative score and tier of s.
func StandingOf(s domain.Supplier) domain.Standing {
	return domain.Standing{SupplierID: s.ID, Name: s.Name, Score: s.ComplianceScore, Risk: RiskFor(s.ComplianceScore)}
}

// Rate is compliant / (compliant + nonCompliant) as a percentage rounded to
// two decimals, or 0 when there is nothing to rate.
func Rate(compliant, nonCompliant int) float64 {
	denom := compliant + nonCompliant
	if denom == 0 {
		return 0
	}
	return round2(float64(compliant) / float64(denom) * 100)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
