package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/domain"
	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/ports"
)

// Exemption thresholds.
const (
	HeavyRainThreshold  = 10.0 // mm/hour
	StrongWindThreshold = 15.0 // m/s
)

var severeWords = []string{"extreme", "heavy", "severe", "thunderstorm", "snow", "blizzard"}

// Exemption is the outcome of evaluating one record against a weather report.
type Exemption struct {
	// Evaluated is false when the record was not non-compliant and was left alone.
	Evaluated     bool
	Exempt        bool
	Justification string
	Simulated     bool
	Analysis      domain.WeatherAnalysis
}

// AssessWeather applies the adverse-condition rules to a report. Each rule
// contributes at most one condition.
func AssessWeather(report domain.WeatherReport) domain.WeatherAnalysis {
	var found []domain.AdverseCondition
	fired := map[string]bool{}
	add := func(c domain.AdverseCondition) {
		if fired[c.Rule] {
			return
		}
		fired[c.Rule] = true
		found = append(found, c)
	}

	for _, code := range report.Conditions {
		switch {
		case code.Thunderstorm():
			add(domain.AdverseCondition{Rule: domain.RuleThunderstorm, Detail: "Thunderstorm"})
		case code.Snow():
			add(domain.AdverseCondition{Rule: domain.RuleSnow, Detail: "Snow"})
		case code.Fog():
			add(domain.AdverseCondition{Rule: domain.RuleFog, Detail: "Fog"})
		case code.Severe():
			add(domain.AdverseCondition{Rule: domain.RuleSevere, Detail: "Severe Weather"})
		}
	}
	if report.Precipitation > HeavyRainThreshold {
		m := report.Precipitation
		add(domain.AdverseCondition{Rule: domain.RuleHeavyRain, Detail: fmt.Sprintf("Heavy rainfall: %gmm/h", m), Measurement: &m})
	}
	if report.WindSpeed > StrongWindThreshold {
		m := report.WindSpeed
		add(domain.AdverseCondition{Rule: domain.RuleStrongWind, Detail: fmt.Sprintf("Strong winds: %g m/s", m), Measurement: &m})
	}

	return domain.WeatherAnalysis{
		HasAdverseWeather: len(found) > 0,
		Conditions:        found,
		Severity:          severity(found, report.Description),
		Justification:     justify(found, report.Description),
		Description:       report.Description,
		Temperature:       report.Temperature,
		WindSpeed:         report.WindSpeed,
		Precipitation:     report.Precipitation,
		Simulated:         report.Simulated,
	}
}

func severity(found []domain.AdverseCondition, desc string) string {
	if len(found) == 0 {
		return domain.SeverityNone
	}
	desc = strings.ToLower(desc)
	for _, w := range severeWords {
		if strings.Contains(desc, w) {
			return domain.SeverityHigh
		}
	}
	for _, c := range found {
		if c.Rule == domain.RuleSevere {
			return domain.SeverityHigh
		}
	}
	if len(found) > 1 {
		return domain.SeverityMedium
	}
	return domain.SeverityLow
}

func justify(found []domain.AdverseCondition, desc string) string {
	switch len(found) {
	case 0:
		return "No adverse weather conditions detected that would impact delivery."
	case 1:
		return fmt.Sprintf("Delivery delay justified due to adverse weather: %s. Weather conditions: %s.", found[0].Detail, desc)
	}
	parts := make([]string, len(found))
	for i, c := range found {
		parts[i] = c.Detail
	}
	list := strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
	return fmt.Sprintf("Delivery delay justified due to multiple adverse weather conditions: %s. Weather conditions: %s.", list, desc)
}

// Evaluate decides whether rec is excused by report. Only non-compliant
// records are touched: each gets the weather payload attached and an exempt
// one moves to excused-weather.
func Evaluate(report domain.WeatherReport, rec *domain.ComplianceRecord) Exemption {
	if rec.Status != domain.StatusNonCompliant {
		return Exemption{
			Justification: fmt.Sprintf("Record is %s; weather exemption not evaluated.", rec.Status),
		}
	}
	analysis := AssessWeather(report)
	analysis.DeliveryDate = rec.DateRecorded

	rec.WeatherAnalysis = &analysis
	rec.WeatherJustification = analysis.Justification
	if analysis.HasAdverseWeather {
		rec.Status = domain.StatusExcusedWeather
	}
	return Exemption{
		Evaluated:     true,
		Exempt:        analysis.HasAdverseWeather,
		Justification: analysis.Justification,
		Simulated:     analysis.Simulated,
		Analysis:      analysis,
	}
}

// Location is where a delivery happened. At, when set, bypasses geocoding.
type Location struct {
	Country string
	At      *domain.Coordinates
}

// WeatherEvaluator fetches weather from the external collaborator and applies
// the exemption rules. It fails closed: without a report nothing changes.
type WeatherEvaluator struct {
	weather ports.WeatherService
	timeout time.Duration
	logger  *slog.Logger
}

func NewWeatherEvaluator(weather ports.WeatherService, timeout time.Duration, logger *slog.Logger) *WeatherEvaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &WeatherEvaluator{weather: weather, timeout: timeout, logger: logger.With("component", "weather-evaluator")}
}

// Fetch resolves loc and retrieves the report for date within the evaluator's
// timeout.
func (e *WeatherEvaluator) Fetch(ctx context.Context, loc Location, date time.Time) (domain.WeatherReport, domain.Coordinates, error) {
	const op = "weather.fetch"
	if e == nil || e.weather == nil {
		return domain.WeatherReport{}, domain.Coordinates{}, newError(KindWeatherUnavailable, op, fmt.Errorf("no weather service configured"))
	}
	ctx, span := tracer.Start(ctx, op)
	defer span.End()
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	var at domain.Coordinates
	if loc.At != nil {
		at = *loc.At
	} else {
		resolved, err := e.weather.ResolveLocation(ctx, loc.Country)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "resolve location")
			return domain.WeatherReport{}, at, collaboratorError(ctx, op, KindWeatherUnavailable, fmt.Errorf("resolve %q: %w", loc.Country, err))
		}
		at = resolved
	}
	span.SetAttributes(attribute.Float64("weather.lat", at.Lat), attribute.Float64("weather.lon", at.Lon))

	report, err := e.weather.HistoricalWeather(ctx, at, date)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "historical weather")
		return domain.WeatherReport{}, at, collaboratorError(ctx, op, KindWeatherUnavailable, err)
	}
	if report.Simulated {
		e.logger.WarnContext(ctx, "weather report is simulated", "lat", at.Lat, "lon", at.Lon, "date", date.Format(time.DateOnly))
	}
	return report, at, nil
}

// Check evaluates one record end to end. Records that are not non-compliant
// are returned untouched without calling the collaborator.
func (e *WeatherEvaluator) Check(ctx context.Context, loc Location, rec *domain.ComplianceRecord) (Exemption, error) {
	if rec.Status != domain.StatusNonCompliant {
		return Evaluate(domain.WeatherReport{}, rec), nil
	}
	report, at, err := e.Fetch(ctx, loc, rec.DateRecorded)
	if err != nil {
		exemptionCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "unavailable")))
		return Exemption{}, err
	}
	return e.Apply(ctx, report, at, rec), nil
}

// Apply evaluates rec against an already fetched report taken at at. It lets
// one report serve every record delivered on the same day.
func (e *WeatherEvaluator) Apply(ctx context.Context, report domain.WeatherReport, at domain.Coordinates, rec *domain.ComplianceRecord) Exemption {
	ex := Evaluate(report, rec)
	if !ex.Evaluated {
		return ex
	}
	rec.WeatherAnalysis.Location = &at
	ex.Analysis.Location = &at
	exemptionCounter.Add(ctx, 1, metric.WithAttributes(attribute.Bool("exempt", ex.Exempt), attribute.Bool("simulated", ex.Simulated)))
	return ex
}
