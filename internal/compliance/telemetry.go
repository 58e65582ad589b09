package compliance

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/AdityaDeshmukh2023/supplier-compliance/internal/compliance"

var (
	tracer = otel.Tracer(instrumentationName)
	meter  = otel.Meter(instrumentationName)

	verdictCounter, _   = meter.Int64Counter("compliance.verdicts", metric.WithDescription("Observations classified, by verdict"))
	exemptionCounter, _ = meter.Int64Counter("compliance.weather.evaluations", metric.WithDescription("Weather exemption evaluations, by outcome"))
	narrativeCounter, _ = meter.Int64Counter("compliance.narratives", metric.WithDescription("Narrative requests, by outcome"))
)
