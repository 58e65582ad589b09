// Package compliance is the compliance analysis and insights engine: it
// classifies observations, aggregates verdicts into a bounded score, decides
// weather exemptions and rolls records up into insight reports.
//
// Every operation is a computation over caller-supplied inputs. The engine
// holds no mutable state; the only blocking calls are the weather and
// generative analysis collaborators, both bounded by a timeout.
package compliance

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/domain"
)

// Engine bundles the metric policy with the two collaborator-facing components.
type Engine struct {
	policy  MetricPolicy
	gateway *NarrativeGateway
	weather *WeatherEvaluator
	logger  *slog.Logger
	clock   func() time.Time
}

func NewEngine(policy MetricPolicy, gateway *NarrativeGateway, weather *WeatherEvaluator, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		policy:  policy,
		gateway: gateway,
		weather: weather,
		logger:  logger.With("component", "compliance-engine"),
		clock:   time.Now,
	}
}

// WithClock overrides the clock for testing.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

func (e *Engine) Policy() MetricPolicy { return e.policy }

func (e *Engine) Weather() *WeatherEvaluator { return e.weather }

func (e *Engine) Now() time.Time { return e.clock().UTC() }

// Outcome is the result for one observation of a batch, in input order.
type Outcome struct {
	Index  int
	Record *domain.ComplianceRecord
	Err    error
}

// ClassifyBatch classifies observations for one supplier in input order.
// A bad observation fails alone; the rest still produce records.
func (e *Engine) ClassifyBatch(ctx context.Context, supplierID int64, obs []domain.Observation) []Outcome {
	out := make([]Outcome, len(obs))
	for i, o := range obs {
		status, err := e.policy.ClassifyObservation(o)
		if err != nil {
			e.logger.WarnContext(ctx, "observation rejected", "supplier_id", supplierID, "index", i, "err", err)
			out[i] = Outcome{Index: i, Err: err}
			continue
		}
		verdictCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
		out[i] = Outcome{Index: i, Record: &domain.ComplianceRecord{
			SupplierID:    supplierID,
			Metric:        o.Metric,
			DateRecorded:  o.DateRecorded,
			Result:        *o.Result,
			ExpectedValue: o.ExpectedValue,
			Status:        status,
		}}
	}
	return out
}

// Narrate returns the advisory narrative for agg, or ok=false when the
// collaborator could not provide one.
func (e *Engine) Narrate(ctx context.Context, agg domain.Aggregates) (domain.Narrative, bool) {
	n, err := e.gateway.Narrate(ctx, agg)
	if err != nil {
		e.logger.WarnContext(ctx, "narrative unavailable", "scope", agg.Scope, "kind", KindOf(err), "err", err)
		return EmptyNarrative(), false
	}
	return n, true
}

// GenerateInsights builds the insight report for in. Collaborator failure
// degrades the report (NarrativeUnavailable set) but is never an error; only
// a broken invariant is.
func (e *Engine) GenerateInsights(ctx context.Context, in InsightInput) (domain.InsightReport, error) {
	ctx, span := tracer.Start(ctx, "insights.generate")
	defer span.End()

	agg, skipped, err := ComputeAggregates(in)
	if err != nil {
		span.RecordError(err)
		return domain.InsightReport{}, err
	}
	for _, s := range skipped {
		e.logger.WarnContext(ctx, "record skipped", "record_id", s.RecordID, "supplier_id", s.SupplierID, "kind", s.Kind, "reason", s.Reason)
	}

	report := domain.InsightReport{
		ID:          uuid.NewString(),
		GeneratedAt: e.Now(),
		Scope:       in.Scope.String(),
		SupplierID:  in.Scope.SupplierID,
		WindowFrom:  in.Window.From,
		WindowTo:    in.Window.To,
		Trends:      agg,
		Skipped:     skipped,
	}
	if !in.Scope.Fleet() {
		for _, s := range in.Suppliers {
			if s.ID == *in.Scope.SupplierID {
				st := StandingOf(s)
				report.Standing = &st
				break
			}
		}
	}

	narrative, ok := e.Narrate(ctx, agg)
	report.Narrative = narrative
	report.NarrativeUnavailable = !ok
	span.SetAttributes(
		attribute.String("insight.scope", report.Scope),
		attribute.Bool("insight.narrative_unavailable", report.NarrativeUnavailable),
	)
	return report, nil
}

// EmptyNarrative is the narrative used when none is available: empty, non-nil lists.
func EmptyNarrative() domain.Narrative {
	return domain.Narrative{
		Recommendations:     []string{},
		KeyIssues:           []string{},
		ContractAdjustments: []domain.ContractAdjustment{},
	}
}
