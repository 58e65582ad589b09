package checks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/adapters/sqlite"
	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/compliance"
	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/domain"
	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/ports"
	weathersvc "github.com/AdityaDeshmukh2023/supplier-compliance/internal/services/weather"
)

var today = time.Date(2024, 8, 10, 0, 0, 0, 0, time.UTC)

type stubAnalyzer struct {
	raw string
	err error
	// during runs while the analysis is in flight
	during func()
}

func (s stubAnalyzer) Analyze(context.Context, domain.Aggregates) (json.RawMessage, error) {
	if s.during != nil {
		s.during()
	}
	return json.RawMessage(s.raw), s.err
}

type stormWeather struct{}

func (stormWeather) ResolveLocation(context.Context, string) (domain.Coordinates, error) {
	return domain.Coordinates{Lat: 51.1, Lon: 10.4}, nil
}

func (stormWeather) HistoricalWeather(context.Context, domain.Coordinates, time.Time) (domain.WeatherReport, error) {
	return domain.WeatherReport{Description: "heavy snow", Conditions: []domain.ConditionCode{602}}, nil
}

type fixture struct {
	svc      *Service
	store    *sqlite.Store
	supplier domain.Supplier
}

func newFixture(t *testing.T, analyzer ports.Analyzer, autoWeather bool) fixture {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.Open(ctx, "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))

	gw, err := compliance.NewNarrativeGateway(analyzer, time.Second, nil)
	require.NoError(t, err)
	engine := compliance.NewEngine(compliance.DefaultPolicy(), gw, nil, nil).WithClock(func() time.Time { return today })

	sup := domain.Supplier{Name: "Acme", Country: "Germany", ComplianceScore: 100}
	require.NoError(t, store.CreateSupplier(ctx, &sup))
	return fixture{svc: New(store, store, engine, autoWeather, nil), store: store, supplier: sup}
}

func ptr(f float64) *float64 { return &f }

func obs(metric string, result, expected float64, daysAgo int) domain.Observation {
	return domain.Observation{Metric: metric, Result: ptr(result), ExpectedValue: ptr(expected), DateRecorded: today.AddDate(0, 0, -daysAgo)}
}

func TestCheckCompliance_LateDelivery(t *testing.T) {
	f := newFixture(t, stubAnalyzer{raw: `{"recommendations": ["tighten delivery SLA"], "compliance_score_suggestion": 40, "risk_assessment": "high"}`}, false)
	ctx := context.Background()

	res, err := f.svc.CheckCompliance(ctx, f.supplier.ID, []domain.Observation{obs("delivery_time", 6, 5, 1)})
	require.NoError(t, err)
	assert.Equal(t, 100, res.PreviousScore)
	assert.Equal(t, 90, res.Score)
	assert.Equal(t, domain.RiskLow, res.Risk)
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, domain.StatusNonCompliant, res.Outcomes[0].Record.Status)

	sup, err := f.store.GetSupplier(ctx, f.supplier.ID)
	require.NoError(t, err)
	assert.Equal(t, 90, sup.ComplianceScore, "the narrative's score suggestion is ignored")

	assert.False(t, res.NarrativeUnavailable)
	rec, err := f.store.GetRecord(ctx, res.Outcomes[0].Record.ID)
	require.NoError(t, err)
	require.NotNil(t, rec.AIAnalysis)
	assert.Equal(t, []string{"tighten delivery SLA"}, rec.AIAnalysis.Recommendations)
}

func TestCheckCompliance_NarrativeDoesNotUndoExemption(t *testing.T) {
	ctx := context.Background()
	var (
		f       fixture
		weather *weathersvc.Service
	)
	analyzer := stubAnalyzer{raw: `{"summary": "one late delivery"}`}
	analyzer.during = func() {
		// a weather check excuses the new record while the narrative is generated
		recs, err := f.store.ListRecords(ctx, ports.RecordFilter{SupplierID: &f.supplier.ID})
		if !assert.NoError(t, err) || !assert.Len(t, recs, 1) {
			return
		}
		res, err := weather.CheckImpact(ctx, weathersvc.Request{SupplierID: f.supplier.ID, RecordID: &recs[0].ID})
		assert.NoError(t, err)
		assert.Equal(t, 1, res.Exempted())
	}
	f = newFixture(t, analyzer, false)
	wxEngine := compliance.NewEngine(compliance.DefaultPolicy(), nil, compliance.NewWeatherEvaluator(stormWeather{}, time.Second, nil), nil)
	weather = weathersvc.New(f.store, wxEngine, nil)

	res, err := f.svc.CheckCompliance(ctx, f.supplier.ID, []domain.Observation{obs("delivery_time", 6, 5, 1)})
	require.NoError(t, err)
	assert.Equal(t, 90, res.Score)
	require.False(t, res.NarrativeUnavailable)

	rec, err := f.store.GetRecord(ctx, res.Outcomes[0].Record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExcusedWeather, rec.Status)
	require.NotNil(t, rec.WeatherAnalysis)
	assert.True(t, rec.WeatherAnalysis.HasAdverseWeather)
	require.NotNil(t, rec.AIAnalysis)
	assert.Equal(t, "one late delivery", rec.AIAnalysis.Summary)

	sup, err := f.store.GetSupplier(ctx, f.supplier.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, sup.ComplianceScore)
}

func TestCheckCompliance_PartialFailureKeepsOrder(t *testing.T) {
	f := newFixture(t, stubAnalyzer{raw: `{}`}, false)
	batch := []domain.Observation{
		obs("quality_score", 97, 95, 1),
		{Metric: "delivery_time", ExpectedValue: ptr(5), DateRecorded: today},
		obs("delivery_time", 7, 5, 2),
		obs("lead_time", 9, 7, 3),
	}
	res, err := f.svc.CheckCompliance(context.Background(), f.supplier.ID, batch)
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 4)
	for i, o := range res.Outcomes {
		assert.Equal(t, i, o.Index)
	}
	assert.Equal(t, domain.StatusCompliant, res.Outcomes[0].Record.Status)
	assert.ErrorIs(t, res.Outcomes[1].Err, compliance.ErrInvalidMetricInput)
	assert.Nil(t, res.Outcomes[1].Record)
	assert.Equal(t, 3, res.Created())
	assert.Equal(t, 80, res.Score)
}

func TestCheckCompliance_NarrativeUnavailableStillScores(t *testing.T) {
	f := newFixture(t, stubAnalyzer{err: errors.New("503")}, false)
	ctx := context.Background()
	res, err := f.svc.CheckCompliance(ctx, f.supplier.ID, []domain.Observation{obs("delivery_time", 6, 5, 1)})
	require.NoError(t, err)
	assert.True(t, res.NarrativeUnavailable)
	assert.NotNil(t, res.Narrative.Recommendations)
	assert.Equal(t, 90, res.Score)

	rec, err := f.store.GetRecord(ctx, res.Outcomes[0].Record.ID)
	require.NoError(t, err)
	assert.Nil(t, rec.AIAnalysis)
}

func TestCheckCompliance_Errors(t *testing.T) {
	f := newFixture(t, stubAnalyzer{raw: `{}`}, false)
	_, err := f.svc.CheckCompliance(context.Background(), 999, []domain.Observation{obs("delivery_time", 6, 5, 1)})
	assert.ErrorIs(t, err, ports.ErrNotFound)

	_, err = f.svc.CheckCompliance(context.Background(), f.supplier.ID, nil)
	assert.ErrorIs(t, err, ports.ErrInvalid)
}

func TestCheckCompliance_ClampsAtZero(t *testing.T) {
	f := newFixture(t, stubAnalyzer{raw: `{}`}, false)
	batch := make([]domain.Observation, 12)
	for i := range batch {
		batch[i] = obs("delivery_time", 9, 5, i)
	}
	res, err := f.svc.CheckCompliance(context.Background(), f.supplier.ID, batch)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Score)
	assert.Equal(t, domain.RiskHigh, res.Risk)
}

func TestCheckCompliance_QueuesWeatherChecks(t *testing.T) {
	f := newFixture(t, stubAnalyzer{raw: `{}`}, true)
	ctx := context.Background()
	res, err := f.svc.CheckCompliance(ctx, f.supplier.ID, []domain.Observation{
		obs("delivery_time", 6, 5, 1),  // late: queued
		obs("quality_score", 80, 95, 1), // higher-is-better miss: not queued
		obs("delivery_time", 4, 5, 1),  // on time: not queued
	})
	require.NoError(t, err)

	job, found, err := f.store.ClaimNext(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, res.Outcomes[0].Record.ID, job.RecordID)

	_, found, err = f.store.ClaimNext(ctx)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCreateRecordAndList(t *testing.T) {
	f := newFixture(t, stubAnalyzer{raw: `{}`}, false)
	ctx := context.Background()

	rec, res, err := f.svc.CreateRecord(ctx, f.supplier.ID, obs("delivery_time", 6, 5, 3))
	require.NoError(t, err)
	assert.NotZero(t, rec.ID)
	assert.Equal(t, 90, res.Score)

	_, _, err = f.svc.CreateRecord(ctx, f.supplier.ID, domain.Observation{Result: ptr(1)})
	assert.ErrorIs(t, err, compliance.ErrInvalidMetricInput)

	_, _, err = f.svc.CreateRecord(ctx, f.supplier.ID, obs("quality_score", 99, 95, 1))
	require.NoError(t, err)

	all, err := f.svc.ListRecords(ctx, f.supplier.ID, "", ports.Page{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "quality_score", all[0].Metric, "newest first")

	delivery, err := f.svc.ListRecords(ctx, f.supplier.ID, "delivery_time", ports.Page{})
	require.NoError(t, err)
	assert.Len(t, delivery, 1)

	_, err = f.svc.ListRecords(ctx, 999, "", ports.Page{})
	assert.ErrorIs(t, err, ports.ErrNotFound)
}
