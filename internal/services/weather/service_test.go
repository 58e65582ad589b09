package weather

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/adapters/sqlite"
	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/compliance"
	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/domain"
	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/ports"
)

var delivery = time.Date(2024, 7, 14, 0, 0, 0, 0, time.UTC)

type fakeWeather struct {
	report   domain.WeatherReport
	err      error
	resolved []string
	calls    int
	at       domain.Coordinates
	// during runs inside the weather lookup, standing in for concurrent work
	during func()
}

func (f *fakeWeather) ResolveLocation(_ context.Context, country string) (domain.Coordinates, error) {
	f.resolved = append(f.resolved, country)
	return domain.Coordinates{Lat: 51.1, Lon: 10.4}, nil
}

func (f *fakeWeather) HistoricalWeather(_ context.Context, at domain.Coordinates, _ time.Time) (domain.WeatherReport, error) {
	f.calls++
	f.at = at
	if f.during != nil {
		during := f.during
		f.during = nil
		during()
	}
	return f.report, f.err
}

var storm = domain.WeatherReport{
	Description:   "thunderstorm with heavy rain",
	Precipitation: 14,
	WindSpeed:     9,
	Conditions:    []domain.ConditionCode{211},
}

type fixture struct {
	svc      *Service
	store    *sqlite.Store
	weather  *fakeWeather
	supplier domain.Supplier
}

func newFixture(t *testing.T, wx *fakeWeather) fixture {
	t.Helper()
	return newFixtureAt(t, wx, 100)
}

func newFixtureAt(t *testing.T, wx *fakeWeather, score int) fixture {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.Open(ctx, "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))

	engine := compliance.NewEngine(compliance.DefaultPolicy(), nil, compliance.NewWeatherEvaluator(wx, time.Second, nil), nil)
	sup := domain.Supplier{Name: "Acme", Country: "Germany", ComplianceScore: score}
	require.NoError(t, store.CreateSupplier(ctx, &sup))
	return fixture{svc: New(store, engine, nil), store: store, weather: wx, supplier: sup}
}

// record stores a record and applies its verdict to the supplier score the
// way a compliance check would.
func (f fixture) record(t *testing.T, metric string, status domain.Status, date time.Time) domain.ComplianceRecord {
	t.Helper()
	ctx := context.Background()
	rec := domain.ComplianceRecord{SupplierID: f.supplier.ID, Metric: metric, DateRecorded: date, Result: 6, Status: status}
	require.NoError(t, f.store.InsertRecord(ctx, &rec))
	sup, err := f.store.GetSupplier(ctx, f.supplier.ID)
	require.NoError(t, err)
	sup.ComplianceScore, err = compliance.Aggregate(sup.ComplianceScore, []domain.Status{status})
	require.NoError(t, err)
	require.NoError(t, f.store.UpdateSupplier(ctx, &sup))
	return rec
}

func (f fixture) score(t *testing.T) int {
	t.Helper()
	sup, err := f.store.GetSupplier(context.Background(), f.supplier.ID)
	require.NoError(t, err)
	return sup.ComplianceScore
}

func TestCheckImpact_ExemptionRestoresScore(t *testing.T) {
	f := newFixture(t, &fakeWeather{report: storm})
	rec := f.record(t, "delivery_time", domain.StatusNonCompliant, delivery)
	require.Equal(t, 90, f.score(t))

	res, err := f.svc.CheckImpact(context.Background(), Request{SupplierID: f.supplier.ID, RecordID: &rec.ID})
	require.NoError(t, err)
	require.Len(t, res.Checks, 1)
	assert.True(t, res.Checks[0].Exempt)
	assert.Equal(t, domain.StatusExcusedWeather, res.Checks[0].Status)
	assert.Equal(t, 1, res.Exempted())
	assert.Equal(t, 90, res.PreviousScore)
	assert.Equal(t, 100, res.Score)
	assert.Equal(t, domain.RiskLow, res.Risk)
	assert.Equal(t, 100, f.score(t))
	assert.Equal(t, []string{"Germany"}, f.weather.resolved)

	stored, err := f.store.GetRecord(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExcusedWeather, stored.Status)
	require.NotNil(t, stored.WeatherAnalysis)
	assert.True(t, stored.WeatherAnalysis.HasAdverseWeather)
	assert.Contains(t, stored.WeatherJustification, "multiple adverse weather conditions")
}

func TestCheckImpact_ExemptionKeepsStartingScore(t *testing.T) {
	f := newFixtureAt(t, &fakeWeather{report: storm}, 50)
	rec := f.record(t, "delivery_time", domain.StatusNonCompliant, delivery)
	require.Equal(t, 40, f.score(t))

	res, err := f.svc.CheckImpact(context.Background(), Request{SupplierID: f.supplier.ID, RecordID: &rec.ID})
	require.NoError(t, err)
	assert.Equal(t, 40, res.PreviousScore)
	assert.Equal(t, 50, res.Score)
	assert.Equal(t, domain.RiskHigh, res.Risk)
	assert.Equal(t, 50, f.score(t))
}

func TestCheckImpact_ExemptionAfterManualScore(t *testing.T) {
	f := newFixture(t, &fakeWeather{report: storm})
	ctx := context.Background()
	first := f.record(t, "delivery_time", domain.StatusNonCompliant, delivery.AddDate(0, 0, -3))

	// score reset by hand after the first late delivery
	sup, err := f.store.GetSupplier(ctx, f.supplier.ID)
	require.NoError(t, err)
	sup.ComplianceScore, sup.ScoreBaseline, sup.BaselineRecordID = 70, 70, first.ID
	require.NoError(t, f.store.UpdateSupplier(ctx, &sup))

	rec := f.record(t, "delivery_time", domain.StatusNonCompliant, delivery)
	require.Equal(t, 60, f.score(t))

	res, err := f.svc.CheckImpact(ctx, Request{SupplierID: f.supplier.ID, RecordID: &rec.ID})
	require.NoError(t, err)
	assert.Equal(t, 70, res.Score)
	assert.Equal(t, 70, f.score(t))
}

func TestCheckImpact_KeepsNarrativeWrittenMeanwhile(t *testing.T) {
	wx := &fakeWeather{report: storm}
	f := newFixture(t, wx)
	ctx := context.Background()
	rec := f.record(t, "delivery_time", domain.StatusNonCompliant, delivery)
	wx.during = func() {
		require.NoError(t, f.store.SetAIAnalysis(ctx, rec.ID, &domain.Narrative{Summary: "late twice this quarter"}))
	}

	res, err := f.svc.CheckImpact(ctx, Request{SupplierID: f.supplier.ID, RecordID: &rec.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Exempted())

	stored, err := f.store.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExcusedWeather, stored.Status)
	require.NotNil(t, stored.AIAnalysis)
	assert.Equal(t, "late twice this quarter", stored.AIAnalysis.Summary)
}

func TestCheckImpact_RecordExcusedMeanwhileIsNotEvaluatedAgain(t *testing.T) {
	wx := &fakeWeather{report: storm}
	f := newFixture(t, wx)
	ctx := context.Background()
	rec := f.record(t, "delivery_time", domain.StatusNonCompliant, delivery)
	wx.during = func() {
		_, err := f.svc.CheckImpact(ctx, Request{SupplierID: f.supplier.ID, RecordID: &rec.ID})
		require.NoError(t, err)
	}

	res, err := f.svc.CheckImpact(ctx, Request{SupplierID: f.supplier.ID, RecordID: &rec.ID})
	require.NoError(t, err)
	require.Len(t, res.Checks, 1)
	assert.False(t, res.Checks[0].Evaluated)
	assert.Equal(t, domain.StatusExcusedWeather, res.Checks[0].StatusBefore)
	assert.Zero(t, res.Exempted())
	assert.Equal(t, 100, res.Score)
	assert.Equal(t, 100, f.score(t))
	assert.Equal(t, 2, wx.calls)
}

func TestCheckImpact_ByDeliveryDate(t *testing.T) {
	f := newFixture(t, &fakeWeather{report: storm})
	a := f.record(t, "delivery_time", domain.StatusNonCompliant, delivery)
	b := f.record(t, "lead_time", domain.StatusNonCompliant, delivery)
	other := f.record(t, "delivery_time", domain.StatusNonCompliant, delivery.AddDate(0, 0, 1))
	require.Equal(t, 70, f.score(t))

	d := delivery
	res, err := f.svc.CheckImpact(context.Background(), Request{SupplierID: f.supplier.ID, DeliveryDate: &d})
	require.NoError(t, err)
	require.Len(t, res.Checks, 2)
	assert.Equal(t, a.ID, res.Checks[0].RecordID)
	assert.Equal(t, b.ID, res.Checks[1].RecordID)
	assert.Equal(t, 1, f.weather.calls, "one report serves the whole day")
	assert.Equal(t, 90, res.Score)

	untouched, err := f.store.GetRecord(context.Background(), other.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNonCompliant, untouched.Status)
}

func TestCheckImpact_FailsClosed(t *testing.T) {
	f := newFixture(t, &fakeWeather{err: errors.New("upstream 500")})
	rec := f.record(t, "delivery_time", domain.StatusNonCompliant, delivery)

	_, err := f.svc.CheckImpact(context.Background(), Request{SupplierID: f.supplier.ID, RecordID: &rec.ID})
	assert.ErrorIs(t, err, compliance.ErrWeatherUnavailable)

	stored, err := f.store.GetRecord(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNonCompliant, stored.Status)
	assert.Nil(t, stored.WeatherAnalysis)
	assert.Equal(t, 90, f.score(t))
}

func TestCheckImpact_CalmWeatherKeepsVerdict(t *testing.T) {
	f := newFixture(t, &fakeWeather{report: domain.WeatherReport{Description: "clear sky", Conditions: []domain.ConditionCode{800}, WindSpeed: 3.5}})
	rec := f.record(t, "delivery_time", domain.StatusNonCompliant, delivery)

	res, err := f.svc.CheckImpact(context.Background(), Request{SupplierID: f.supplier.ID, RecordID: &rec.ID})
	require.NoError(t, err)
	assert.True(t, res.Checks[0].Evaluated)
	assert.False(t, res.Checks[0].Exempt)
	assert.Equal(t, 90, res.Score)

	stored, err := f.store.GetRecord(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNonCompliant, stored.Status)
	require.NotNil(t, stored.WeatherAnalysis, "the analysis is kept even without an exemption")
	assert.Equal(t, domain.SeverityNone, stored.WeatherAnalysis.Severity)
}

func TestCheckImpact_CompliantRecordIsNoop(t *testing.T) {
	f := newFixture(t, &fakeWeather{report: storm})
	rec := f.record(t, "delivery_time", domain.StatusCompliant, delivery)

	res, err := f.svc.CheckImpact(context.Background(), Request{SupplierID: f.supplier.ID, RecordID: &rec.ID})
	require.NoError(t, err)
	assert.False(t, res.Checks[0].Evaluated)
	assert.Equal(t, domain.StatusCompliant, res.Checks[0].Status)
	assert.Zero(t, f.weather.calls)
	assert.Equal(t, 100, res.Score)
}

func TestCheckImpact_ExplicitCoordinates(t *testing.T) {
	f := newFixture(t, &fakeWeather{report: storm})
	rec := f.record(t, "delivery_time", domain.StatusNonCompliant, delivery)
	lat, lon := 48.1, 11.6

	res, err := f.svc.CheckImpact(context.Background(), Request{SupplierID: f.supplier.ID, RecordID: &rec.ID, Lat: &lat, Lon: &lon})
	require.NoError(t, err)
	assert.Empty(t, f.weather.resolved)
	assert.Equal(t, domain.Coordinates{Lat: lat, Lon: lon}, f.weather.at)
	require.NotNil(t, res.Checks[0].Analysis.Location)
	assert.Equal(t, lat, res.Checks[0].Analysis.Location.Lat)
}

func TestCheckImpact_BadRequests(t *testing.T) {
	f := newFixture(t, &fakeWeather{report: storm})
	rec := f.record(t, "delivery_time", domain.StatusNonCompliant, delivery)
	lat := 1.0

	_, err := f.svc.CheckImpact(context.Background(), Request{SupplierID: f.supplier.ID})
	assert.ErrorIs(t, err, ports.ErrInvalid)

	_, err = f.svc.CheckImpact(context.Background(), Request{SupplierID: f.supplier.ID, RecordID: &rec.ID, Lat: &lat})
	assert.ErrorIs(t, err, ports.ErrInvalid)

	_, err = f.svc.CheckImpact(context.Background(), Request{SupplierID: 999, RecordID: &rec.ID})
	assert.ErrorIs(t, err, ports.ErrNotFound)

	other := domain.Supplier{Name: "Borealis", Country: "Norway", ComplianceScore: 100}
	require.NoError(t, f.store.CreateSupplier(context.Background(), &other))
	_, err = f.svc.CheckImpact(context.Background(), Request{SupplierID: other.ID, RecordID: &rec.ID})
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestProcessRecord(t *testing.T) {
	f := newFixture(t, &fakeWeather{report: storm})
	rec := f.record(t, "delivery_time", domain.StatusNonCompliant, delivery)

	require.NoError(t, f.svc.ProcessRecord(context.Background(), rec.ID))
	assert.Equal(t, 100, f.score(t))

	assert.ErrorIs(t, f.svc.ProcessRecord(context.Background(), 999), ports.ErrNotFound)
}
