package compliance

import (
	"strings"

	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/domain"
)

// Direction says which side of the expected value is compliant.
type Direction string

const (
	LowerIsBetter  Direction = "lower"
	HigherIsBetter Direction = "higher"
)

// MetricPolicy maps metric names to a direction by case-insensitive substring
// match. Lower-is-better keywords are checked first.
type MetricPolicy struct {
	LowerIsBetter  []string
	HigherIsBetter []string
	Default        Direction
}

// DefaultPolicy matches delivery/time/lead as lower-is-better and
// quality/score/level as higher-is-better. Anything else is lower-is-better.
func DefaultPolicy() MetricPolicy {
	return MetricPolicy{
		LowerIsBetter:  []string{"delivery", "time", "lead"},
		HigherIsBetter: []string{"quality", "score", "level"},
		Default:        LowerIsBetter,
	}
}

// DirectionFor resolves the direction used for metric.
func (p MetricPolicy) DirectionFor(metric string) Direction {
	name := strings.ToLower(metric)
	for _, kw := range p.LowerIsBetter {
		if kw != "" && strings.Contains(name, strings.ToLower(kw)) {
			return LowerIsBetter
		}
	}
	for _, kw := range p.HigherIsBetter {
		if kw != "" && strings.Contains(name, strings.ToLower(kw)) {
			return HigherIsBetter
		}
	}
	if p.Default == HigherIsBetter {
		return HigherIsBetter
	}
	return LowerIsBetter
}

// Classify returns the verdict for one observation. A missing expected value
// is never a violation. Ties are compliant.
func (p MetricPolicy) Classify(metric string, result float64, expected *float64) domain.Status {
	if expected == nil {
		return domain.StatusCompliant
	}
	var ok bool
	switch p.DirectionFor(metric) {
	case HigherIsBetter:
		ok = result >= *expected
	default:
		ok = result <= *expected
	}
	if ok {
		return domain.StatusCompliant
	}
	return domain.StatusNonCompliant
}

// ClassifyObservation validates obs and classifies it. A missing result is
// an InvalidMetricInput error.
func (p MetricPolicy) ClassifyObservation(obs domain.Observation) (domain.Status, error) {
	if strings.TrimSpace(obs.Metric) == "" {
		return "", newError(KindInvalidMetricInput, "classify", errMissingMetric)
	}
	if obs.Result == nil {
		return "", newError(KindInvalidMetricInput, "classify", errMissingResult)
	}
	return p.Classify(obs.Metric, *obs.Result, obs.ExpectedValue), nil
}
