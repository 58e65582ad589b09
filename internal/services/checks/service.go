// Package checks turns uploaded observations into compliance records and
// keeps the supplier score in step with them.
package checks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/compliance"
	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/domain"
	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/ports"
)

const (
	// NarrativeWindowDays is how much supplier history feeds the batch narrative.
	NarrativeWindowDays = 90
	DefaultLimit        = 100
)

type Service struct {
	store  ports.Store
	jobs   ports.JobRepository
	engine *compliance.Engine
	logger *slog.Logger

	autoWeather bool
}

// New builds the service. jobs may be nil; with autoWeather set, every new
// non-compliant lower-is-better record gets a weather-check job.
func New(store ports.Store, jobs ports.JobRepository, engine *compliance.Engine, autoWeather bool, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       store,
		jobs:        jobs,
		engine:      engine,
		autoWeather: autoWeather && jobs != nil,
		logger:      logger.With("component", "checks"),
	}
}

// RecordOutcome reports one observation of a batch. Exactly one of Record
// and Err is set.
type RecordOutcome struct {
	Index  int
	Record *domain.ComplianceRecord
	Err    error
}

type BatchResult struct {
	SupplierID           int64
	PreviousScore        int
	Score                int
	Risk                 domain.RiskTier
	Outcomes             []RecordOutcome
	Narrative            domain.Narrative
	NarrativeUnavailable bool
}

// Created counts the observations that became records.
func (b BatchResult) Created() int {
	n := 0
	for _, o := range b.Outcomes {
		if o.Record != nil {
			n++
		}
	}
	return n
}

// CheckCompliance classifies a batch for one supplier, persists the records,
// updates the score and attaches an advisory narrative to the new records.
// Bad observations fail individually; a missing supplier fails the batch.
func (s *Service) CheckCompliance(ctx context.Context, supplierID int64, obs []domain.Observation) (BatchResult, error) {
	if len(obs) == 0 {
		return BatchResult{}, fmt.Errorf("%w: no observations", ports.ErrInvalid)
	}
	res, err := s.apply(ctx, supplierID, obs)
	if err != nil {
		return BatchResult{}, err
	}

	created := res.records()
	if len(created) > 0 {
		res.Narrative, res.NarrativeUnavailable = s.narrate(ctx, supplierID)
		if !res.NarrativeUnavailable {
			// only the narrative column is written; a weather check may have
			// excused the record since it was inserted
			for _, r := range created {
				n := res.Narrative
				r.AIAnalysis = &n
				if err := s.store.SetAIAnalysis(ctx, r.ID, &n); err != nil {
					s.logger.WarnContext(ctx, "attaching narrative failed", "record_id", r.ID, "err", err)
				}
			}
		}
	}
	s.enqueueWeather(ctx, created)
	return res, nil
}

// CreateRecord classifies and stores a single observation.
func (s *Service) CreateRecord(ctx context.Context, supplierID int64, obs domain.Observation) (domain.ComplianceRecord, BatchResult, error) {
	res, err := s.apply(ctx, supplierID, []domain.Observation{obs})
	if err != nil {
		return domain.ComplianceRecord{}, BatchResult{}, err
	}
	o := res.Outcomes[0]
	if o.Err != nil {
		return domain.ComplianceRecord{}, res, o.Err
	}
	s.enqueueWeather(ctx, res.records())
	return *o.Record, res, nil
}

// ListRecords returns a supplier's records newest first, optionally for one metric.
func (s *Service) ListRecords(ctx context.Context, supplierID int64, metric string, page ports.Page) ([]domain.ComplianceRecord, error) {
	if page.Skip < 0 || page.Limit < 0 {
		return nil, fmt.Errorf("%w: skip and limit must not be negative", ports.ErrInvalid)
	}
	if page.Limit == 0 {
		page.Limit = DefaultLimit
	}
	if _, err := s.store.GetSupplier(ctx, supplierID); err != nil {
		return nil, err
	}
	return s.store.ListRecords(ctx, ports.RecordFilter{SupplierID: &supplierID, Metric: metric, Page: page})
}

func (b BatchResult) records() []*domain.ComplianceRecord {
	var out []*domain.ComplianceRecord
	for _, o := range b.Outcomes {
		if o.Record != nil {
			out = append(out, o.Record)
		}
	}
	return out
}

// apply classifies obs and, under the supplier lock, stores the records and
// folds their verdicts into the score read inside the same lock.
func (s *Service) apply(ctx context.Context, supplierID int64, obs []domain.Observation) (BatchResult, error) {
	if _, err := s.store.GetSupplier(ctx, supplierID); err != nil {
		return BatchResult{}, err
	}
	outcomes := s.engine.ClassifyBatch(ctx, supplierID, obs)

	res := BatchResult{SupplierID: supplierID, Outcomes: make([]RecordOutcome, len(outcomes))}
	err := s.store.WithSupplierLock(ctx, supplierID, func(ctx context.Context, tx ports.Store) error {
		sup, err := tx.GetSupplier(ctx, supplierID)
		if err != nil {
			return err
		}
		var verdicts []domain.Status
		for i, o := range outcomes {
			res.Outcomes[i] = RecordOutcome{Index: o.Index, Err: o.Err}
			if o.Record == nil {
				continue
			}
			if err := tx.InsertRecord(ctx, o.Record); err != nil {
				return fmt.Errorf("insert record %d: %w", o.Index, err)
			}
			res.Outcomes[i].Record = o.Record
			verdicts = append(verdicts, o.Record.Status)
		}
		score, err := compliance.Aggregate(sup.ComplianceScore, verdicts)
		if err != nil {
			return err
		}
		res.PreviousScore = sup.ComplianceScore
		res.Score = score
		if score != sup.ComplianceScore {
			sup.ComplianceScore = score
			if err := tx.UpdateSupplier(ctx, &sup); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return BatchResult{}, err
	}
	res.Risk = compliance.RiskFor(res.Score)
	s.logger.InfoContext(ctx, "compliance batch applied",
		"supplier_id", supplierID, "observations", len(obs), "created", res.Created(),
		"previous_score", res.PreviousScore, "score", res.Score)
	return res, nil
}

// narrate asks for a supplier-scope narrative over recent history. Failure
// only degrades the result.
func (s *Service) narrate(ctx context.Context, supplierID int64) (domain.Narrative, bool) {
	sup, err := s.store.GetSupplier(ctx, supplierID)
	if err != nil {
		s.logger.WarnContext(ctx, "narrative skipped", "supplier_id", supplierID, "err", err)
		return compliance.EmptyNarrative(), true
	}
	window := domain.LastDays(s.engine.Now(), NarrativeWindowDays)
	records, err := s.store.ListRecords(ctx, ports.RecordFilter{SupplierID: &supplierID, From: &window.From, To: &window.To})
	if err != nil {
		s.logger.WarnContext(ctx, "narrative skipped", "supplier_id", supplierID, "err", err)
		return compliance.EmptyNarrative(), true
	}
	agg, _, err := compliance.ComputeAggregates(compliance.InsightInput{
		Scope:     domain.SupplierScope(supplierID),
		Window:    window,
		Suppliers: []domain.Supplier{sup},
		Records:   records,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "narrative skipped", "supplier_id", supplierID, "err", err)
		return compliance.EmptyNarrative(), true
	}
	n, ok := s.engine.Narrate(ctx, agg)
	return n, !ok
}

func (s *Service) enqueueWeather(ctx context.Context, records []*domain.ComplianceRecord) {
	if !s.autoWeather {
		return
	}
	policy := s.engine.Policy()
	for _, r := range records {
		if r.Status != domain.StatusNonCompliant || policy.DirectionFor(r.Metric) != compliance.LowerIsBetter {
			continue
		}
		jobID, err := s.jobs.EnqueueWeatherCheck(ctx, r.ID)
		if err != nil {
			s.logger.WarnContext(ctx, "weather check not queued", "record_id", r.ID, "err", err)
			continue
		}
		s.logger.DebugContext(ctx, "weather check queued", "record_id", r.ID, "job_id", jobID)
	}
}
