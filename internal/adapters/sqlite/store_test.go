package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/domain"
	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/ports"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := Open(ctx, "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))
	return s
}

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func newSupplier(t *testing.T, s *Store, name string) domain.Supplier {
	t.Helper()
	sup := domain.Supplier{
		Name:            name,
		Country:         "Germany",
		ContractTerms:   domain.Terms{"delivery_time": domain.String("5 days"), "penalty": domain.Number(2.5)},
		ComplianceScore: 100,
	}
	require.NoError(t, s.CreateSupplier(context.Background(), &sup))
	return sup
}

func TestSupplierRoundTrip(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	sup := newSupplier(t, s, "Acme")
	assert.NotZero(t, sup.ID)
	assert.False(t, sup.CreatedAt.IsZero())

	got, err := s.GetSupplier(ctx, sup.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Name)
	assert.True(t, sup.ContractTerms.Equal(got.ContractTerms))
	assert.Nil(t, got.UpdatedAt)

	audit := day(2024, 6, 1)
	got.ComplianceScore = 70
	got.LastAudit = &audit
	require.NoError(t, s.UpdateSupplier(ctx, &got))
	assert.NotNil(t, got.UpdatedAt)

	again, err := s.GetSupplier(ctx, sup.ID)
	require.NoError(t, err)
	assert.Equal(t, 70, again.ComplianceScore)
	require.NotNil(t, again.LastAudit)
	assert.True(t, audit.Equal(*again.LastAudit))
}

func TestCreateSupplier_DuplicateNameConflicts(t *testing.T) {
	s := openTest(t)
	newSupplier(t, s, "Acme")
	dup := domain.Supplier{Name: "Acme", Country: "France", ComplianceScore: 100}
	err := s.CreateSupplier(context.Background(), &dup)
	assert.ErrorIs(t, err, ports.ErrConflict)
}

func TestListSuppliers_Paging(t *testing.T) {
	s := openTest(t)
	for _, n := range []string{"A", "B", "C", "D"} {
		newSupplier(t, s, n)
	}
	page, err := s.ListSuppliers(context.Background(), ports.Page{Skip: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "B", page[0].Name)
	assert.Equal(t, "C", page[1].Name)

	rest, err := s.ListSuppliers(context.Background(), ports.Page{Skip: 3})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "D", rest[0].Name)
}

func TestRecords_FilterOrderAndPayloads(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	sup := newSupplier(t, s, "Acme")
	five := 5.0

	insert := func(metric string, d time.Time, status domain.Status) domain.ComplianceRecord {
		r := domain.ComplianceRecord{SupplierID: sup.ID, Metric: metric, DateRecorded: d, Result: 6, ExpectedValue: &five, Status: status}
		require.NoError(t, s.InsertRecord(ctx, &r))
		return r
	}
	first := insert("delivery_time", day(2024, 8, 1), domain.StatusNonCompliant)
	insert("quality_score", day(2024, 8, 2), domain.StatusCompliant)
	last := insert("delivery_time", day(2024, 8, 3), domain.StatusCompliant)

	newest, err := s.ListRecords(ctx, ports.RecordFilter{SupplierID: &sup.ID, Metric: "delivery_time"})
	require.NoError(t, err)
	require.Len(t, newest, 2)
	assert.Equal(t, last.ID, newest[0].ID)
	assert.Equal(t, day(2024, 8, 3), newest[0].DateRecorded)
	require.NotNil(t, newest[0].ExpectedValue)
	assert.Equal(t, 5.0, *newest[0].ExpectedValue)

	oldest, err := s.ListRecords(ctx, ports.RecordFilter{SupplierID: &sup.ID, Oldest: true})
	require.NoError(t, err)
	assert.Equal(t, first.ID, oldest[0].ID)

	from, to := day(2024, 8, 2), day(2024, 8, 2)
	windowed, err := s.ListRecords(ctx, ports.RecordFilter{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, windowed, 1)
	assert.Equal(t, "quality_score", windowed[0].Metric)

	narrative := &domain.Narrative{Recommendations: []string{"renegotiate"}, KeyIssues: []string{}, ContractAdjustments: []domain.ContractAdjustment{}}
	require.NoError(t, s.SetAIAnalysis(ctx, first.ID, narrative))

	// the weather write leaves the narrative alone
	first.Status = domain.StatusExcusedWeather
	first.WeatherJustification = "Delivery delay justified due to adverse weather: Snow."
	first.WeatherAnalysis = &domain.WeatherAnalysis{HasAdverseWeather: true, Severity: domain.SeverityHigh}
	first.AIAnalysis = nil
	require.NoError(t, s.SetWeatherOutcome(ctx, &first))

	got, err := s.GetRecord(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExcusedWeather, got.Status)
	require.NotNil(t, got.WeatherAnalysis)
	assert.Equal(t, domain.SeverityHigh, got.WeatherAnalysis.Severity)
	require.NotNil(t, got.AIAnalysis)
	assert.Equal(t, []string{"renegotiate"}, got.AIAnalysis.Recommendations)

	excused, err := s.ListRecords(ctx, ports.RecordFilter{Status: domain.StatusExcusedWeather})
	require.NoError(t, err)
	assert.Len(t, excused, 1)
}

func TestInsertRecord_UnknownSupplier(t *testing.T) {
	s := openTest(t)
	r := domain.ComplianceRecord{SupplierID: 42, Metric: "delivery_time", DateRecorded: day(2024, 1, 1), Status: domain.StatusCompliant}
	assert.ErrorIs(t, s.InsertRecord(context.Background(), &r), ports.ErrNotFound)
}

func TestDeleteSupplier_RemovesRecords(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	sup := newSupplier(t, s, "Acme")
	r := domain.ComplianceRecord{SupplierID: sup.ID, Metric: "delivery_time", DateRecorded: day(2024, 1, 1), Status: domain.StatusCompliant}
	require.NoError(t, s.InsertRecord(ctx, &r))

	require.NoError(t, s.DeleteSupplier(ctx, sup.ID))
	_, err := s.GetRecord(ctx, r.ID)
	assert.ErrorIs(t, err, ports.ErrNotFound)
	assert.ErrorIs(t, s.DeleteSupplier(ctx, sup.ID), ports.ErrNotFound)
}

func TestWithSupplierLock_RollsBackOnError(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	sup := newSupplier(t, s, "Acme")

	boom := errors.New("boom")
	err := s.WithSupplierLock(ctx, sup.ID, func(ctx context.Context, tx ports.Store) error {
		got, err := tx.GetSupplier(ctx, sup.ID)
		require.NoError(t, err)
		got.ComplianceScore = 10
		require.NoError(t, tx.UpdateSupplier(ctx, &got))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetSupplier(ctx, sup.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.ComplianceScore)

	err = s.WithSupplierLock(ctx, 999, func(context.Context, ports.Store) error { return nil })
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestWithSupplierLock_CommitsAndNests(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	sup := newSupplier(t, s, "Acme")

	err := s.WithSupplierLock(ctx, sup.ID, func(ctx context.Context, tx ports.Store) error {
		return tx.WithSupplierLock(ctx, sup.ID, func(ctx context.Context, inner ports.Store) error {
			got, err := inner.GetSupplier(ctx, sup.ID)
			if err != nil {
				return err
			}
			got.ComplianceScore = 90
			return inner.UpdateSupplier(ctx, &got)
		})
	})
	require.NoError(t, err)
	got, err := s.GetSupplier(ctx, sup.ID)
	require.NoError(t, err)
	assert.Equal(t, 90, got.ComplianceScore)
}

func TestWeatherJobs(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	sup := newSupplier(t, s, "Acme")
	r := domain.ComplianceRecord{SupplierID: sup.ID, Metric: "delivery_time", DateRecorded: day(2024, 1, 1), Status: domain.StatusNonCompliant}
	require.NoError(t, s.InsertRecord(ctx, &r))

	_, found, err := s.ClaimNext(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	id1, err := s.EnqueueWeatherCheck(ctx, r.ID)
	require.NoError(t, err)
	id2, err := s.EnqueueWeatherCheck(ctx, r.ID)
	require.NoError(t, err)

	job, found, err := s.ClaimNext(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, id1, job.ID)
	assert.Equal(t, r.ID, job.RecordID)

	job2, found, err := s.ClaimNext(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, id2, job2.ID)

	require.NoError(t, s.MarkCompleted(ctx, job.ID))
	require.NoError(t, s.MarkFailed(ctx, job2.ID, "weather unavailable"))
	assert.ErrorIs(t, s.MarkCompleted(ctx, 12345), ports.ErrNotFound)

	_, err = s.EnqueueWeatherCheck(ctx, 999)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestGetSupplier_DriverErrorPropagates(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT .* FROM suppliers WHERE id = ?").
		WithArgs(int64(1)).
		WillReturnError(errors.New("disk I/O error"))

	_, err = New(db).GetSupplier(context.Background(), 1)
	assert.ErrorContains(t, err, "disk I/O error")
	assert.NotErrorIs(t, err, ports.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetWeatherOutcome_MissingRowIsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("SET status = .* weather_justification").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = New(db).SetWeatherOutcome(context.Background(), &domain.ComplianceRecord{ID: 7, Status: domain.StatusCompliant})
	assert.ErrorIs(t, err, ports.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetAIAnalysis_TouchesOnlyTheNarrative(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec(`UPDATE compliance_records SET ai_analysis = \? WHERE id = \?`).
		WithArgs(sqlmock.AnyArg(), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, New(db).SetAIAnalysis(context.Background(), 7, &domain.Narrative{Summary: "ok"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSupplierBaseline(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	sup := domain.Supplier{Name: "Acme", Country: "Germany", ComplianceScore: 55, ScoreBaseline: 12, BaselineRecordID: 99}
	require.NoError(t, s.CreateSupplier(ctx, &sup))
	assert.Equal(t, 55, sup.ScoreBaseline, "a new supplier starts from its own score")
	assert.Zero(t, sup.BaselineRecordID)

	got, err := s.GetSupplier(ctx, sup.ID)
	require.NoError(t, err)
	assert.Equal(t, 55, got.ScoreBaseline)

	got.ScoreBaseline, got.BaselineRecordID = 70, 4
	require.NoError(t, s.UpdateSupplier(ctx, &got))
	again, err := s.GetSupplier(ctx, sup.ID)
	require.NoError(t, err)
	assert.Equal(t, 70, again.ScoreBaseline)
	assert.Equal(t, int64(4), again.BaselineRecordID)
}

func TestCreateSupplier_ConstraintMessageMapsToConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("INSERT INTO suppliers").
		WillReturnError(errors.New("constraint failed: UNIQUE constraint failed: suppliers.name (2067)"))

	sup := domain.Supplier{Name: "Acme", Country: "DE", ComplianceScore: 100}
	assert.ErrorIs(t, New(db).CreateSupplier(context.Background(), &sup), ports.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithSupplierLock_BeginFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectBegin().WillReturnError(errors.New("database is locked"))

	called := false
	err = New(db).WithSupplierLock(context.Background(), 1, func(context.Context, ports.Store) error {
		called = true
		return nil
	})
	assert.ErrorContains(t, err, "database is locked")
	assert.False(t, called)
}
