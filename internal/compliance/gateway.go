package compliance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/domain"
	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/ports"
)

const (
	maxNarrativeItems = 10
	maxNarrativeText  = 2000
)

// Per-field schemas. List fields are validated item by item so one bad entry
// does not discard its siblings. Text must hold at least one non-space
// character since it is stored trimmed.
var narrativeFieldSchemas = map[string]string{
	"text":       `{"type": "string", "pattern": "\\S"}`,
	"risk":       `{"type": "string", "enum": ["low", "medium", "high"]}`,
	"score":      `{"type": "integer", "minimum": 0, "maximum": 100}`,
	"adjustment": `{"type": "object", "required": ["term", "suggested_change"], "properties": {"term": {"type": "string", "pattern": "\\S"}, "suggested_change": {"type": "string", "pattern": "\\S"}, "rationale": {"type": "string"}}}`,
}

// NarrativeGateway is the only caller of the generative analysis collaborator.
// It treats every response as untrusted and drops whatever does not match
// the declared shape.
type NarrativeGateway struct {
	analyzer ports.Analyzer
	timeout  time.Duration
	logger   *slog.Logger
	schemas  map[string]*jsonschema.Schema
}

func NewNarrativeGateway(analyzer ports.Analyzer, timeout time.Duration, logger *slog.Logger) (*NarrativeGateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	schemas := make(map[string]*jsonschema.Schema, len(narrativeFieldSchemas))
	for name, src := range narrativeFieldSchemas {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		url := fmt.Sprintf("https://supplier-compliance.local/narrative/%s.schema.json", name)
		if err := c.AddResource(url, strings.NewReader(src)); err != nil {
			return nil, fmt.Errorf("narrative schema %s: %w", name, err)
		}
		compiled, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("narrative schema %s: %w", name, err)
		}
		schemas[name] = compiled
	}
	return &NarrativeGateway{
		analyzer: analyzer,
		timeout:  timeout,
		logger:   logger.With("component", "narrative-gateway"),
		schemas:  schemas,
	}, nil
}

// Narrate asks the collaborator for a narrative over agg. Any failure is a
// NarrativeUnavailable (or Timeout) error; callers degrade rather than fail.
func (g *NarrativeGateway) Narrate(ctx context.Context, agg domain.Aggregates) (domain.Narrative, error) {
	const op = "narrative.generate"
	if g == nil || g.analyzer == nil {
		narrativeCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "unconfigured")))
		return domain.Narrative{}, newError(KindNarrativeUnavailable, op, fmt.Errorf("no analyzer configured"))
	}
	ctx, span := tracer.Start(ctx, op)
	defer span.End()
	span.SetAttributes(attribute.String("insight.scope", agg.Scope))
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	raw, err := g.analyzer.Analyze(ctx, agg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "analyze")
		narrativeCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "error")))
		return domain.Narrative{}, collaboratorError(ctx, op, KindNarrativeUnavailable, err)
	}
	n, dropped, err := g.Sanitize(raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed response")
		narrativeCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "malformed")))
		return domain.Narrative{}, newError(KindNarrativeUnavailable, op, err)
	}
	if len(dropped) > 0 {
		g.logger.WarnContext(ctx, "dropped malformed narrative fields", "fields", dropped)
	}
	narrativeCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "ok")))
	return n, nil
}

// Sanitize decodes raw and keeps only fields matching their schema. It
// returns the names of dropped fields or list items. Only a response that is
// not a JSON object at all is an error.
func (g *NarrativeGateway) Sanitize(raw json.RawMessage) (domain.Narrative, []string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return domain.Narrative{}, nil, fmt.Errorf("decode narrative: %w", err)
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return domain.Narrative{}, nil, fmt.Errorf("narrative is %T, want object", doc)
	}

	var (
		n       = domain.Narrative{Recommendations: []string{}, KeyIssues: []string{}, ContractAdjustments: []domain.ContractAdjustment{}}
		dropped []string
	)
	n.Recommendations, dropped = g.texts(obj, "recommendations", dropped)
	n.KeyIssues, dropped = g.texts(obj, "key_issues", dropped)

	if v, ok := obj["risk_assessment"]; ok {
		if g.valid("risk", v) {
			n.RiskAssessment = domain.RiskTier(v.(string))
		} else {
			dropped = append(dropped, "risk_assessment")
		}
	}
	if v, ok := obj["compliance_score_suggestion"]; ok && v != nil {
		if s, ok := asScore(v); ok && g.valid("score", v) {
			n.ScoreSuggestion = &s
		} else {
			dropped = append(dropped, "compliance_score_suggestion")
		}
	}
	if v, ok := obj["summary"]; ok {
		if g.valid("text", v) {
			n.Summary = truncate(v.(string))
		} else {
			dropped = append(dropped, "summary")
		}
	}
	if v, ok := obj["contract_adjustments"]; ok {
		items, isList := v.([]any)
		if !isList {
			dropped = append(dropped, "contract_adjustments")
		}
		for i, item := range items {
			if len(n.ContractAdjustments) == maxNarrativeItems {
				break
			}
			if !g.valid("adjustment", item) {
				dropped = append(dropped, fmt.Sprintf("contract_adjustments[%d]", i))
				continue
			}
			m := item.(map[string]any)
			adj := domain.ContractAdjustment{
				Term:            truncate(m["term"].(string)),
				SuggestedChange: truncate(m["suggested_change"].(string)),
			}
			if r, ok := m["rationale"].(string); ok {
				adj.Rationale = truncate(r)
			}
			n.ContractAdjustments = append(n.ContractAdjustments, adj)
		}
	}
	return n, dropped, nil
}

func (g *NarrativeGateway) texts(obj map[string]any, field string, dropped []string) ([]string, []string) {
	out := []string{}
	v, ok := obj[field]
	if !ok {
		return out, dropped
	}
	items, isList := v.([]any)
	if !isList {
		return out, append(dropped, field)
	}
	for i, item := range items {
		if len(out) == maxNarrativeItems {
			break
		}
		if !g.valid("text", item) {
			dropped = append(dropped, fmt.Sprintf("%s[%d]", field, i))
			continue
		}
		out = append(out, truncate(item.(string)))
	}
	return out, dropped
}

func (g *NarrativeGateway) valid(schema string, v any) bool {
	s := g.schemas[schema]
	return s != nil && s.Validate(v) == nil
}

func asScore(v any) (int, bool) {
	num, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	if i, err := num.Int64(); err == nil {
		return int(i), true
	}
	f, err := num.Float64()
	if err != nil || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= maxNarrativeText {
		return s
	}
	return string(r[:maxNarrativeText])
}
