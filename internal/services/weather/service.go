// Package weather runs weather-impact checks against stored records and
// recomputes the supplier score when a delivery is excused.
package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/compliance"
	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/domain"
	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/ports"
)

type Service struct {
	store  ports.Store
	engine *compliance.Engine
	logger *slog.Logger
}

func New(store ports.Store, engine *compliance.Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, engine: engine, logger: logger.With("component", "weather-checks")}
}

// Request selects either one record or every non-compliant record of the
// supplier delivered on DeliveryDate. Lat and Lon together bypass geocoding.
type Request struct {
	SupplierID   int64
	RecordID     *int64
	DeliveryDate *time.Time
	Lat, Lon     *float64
}

// RecordCheck is the outcome for one record.
type RecordCheck struct {
	RecordID      int64
	Metric        string
	StatusBefore  domain.Status
	Status        domain.Status
	Evaluated     bool
	Exempt        bool
	Justification string
	Analysis      *domain.WeatherAnalysis
}

type Result struct {
	SupplierID    int64
	DeliveryDate  *time.Time
	Checks        []RecordCheck
	PreviousScore int
	Score         int
	Risk          domain.RiskTier
}

// Exempted counts records moved to excused-weather.
func (r Result) Exempted() int {
	n := 0
	for _, c := range r.Checks {
		if c.Exempt {
			n++
		}
	}
	return n
}

// CheckImpact evaluates the selected records. One weather report serves all
// of them. If it cannot be obtained nothing is changed and the error carries
// the WeatherUnavailable or Timeout kind.
func (s *Service) CheckImpact(ctx context.Context, req Request) (Result, error) {
	if (req.Lat == nil) != (req.Lon == nil) {
		return Result{}, fmt.Errorf("%w: latitude and longitude go together", ports.ErrInvalid)
	}
	if req.RecordID == nil && req.DeliveryDate == nil {
		return Result{}, fmt.Errorf("%w: record_id or delivery_date is required", ports.ErrInvalid)
	}
	sup, err := s.store.GetSupplier(ctx, req.SupplierID)
	if err != nil {
		return Result{}, err
	}
	targets, date, err := s.targets(ctx, req)
	if err != nil {
		return Result{}, err
	}
	res := Result{
		SupplierID:    sup.ID,
		DeliveryDate:  date,
		Checks:        make([]RecordCheck, len(targets)),
		PreviousScore: sup.ComplianceScore,
		Score:         sup.ComplianceScore,
	}

	needsWeather := false
	for i, r := range targets {
		res.Checks[i] = RecordCheck{RecordID: r.ID, Metric: r.Metric, StatusBefore: r.Status, Status: r.Status}
		if r.Status == domain.StatusNonCompliant {
			needsWeather = true
		} else {
			res.Checks[i].Justification = compliance.Evaluate(domain.WeatherReport{}, &targets[i]).Justification
		}
	}
	if !needsWeather {
		res.Risk = compliance.RiskFor(res.Score)
		return res, nil
	}

	loc := compliance.Location{Country: sup.Country}
	if req.Lat != nil {
		loc.At = &domain.Coordinates{Lat: *req.Lat, Lon: *req.Lon}
	}
	report, at, err := s.engine.Weather().Fetch(ctx, loc, targets[0].DateRecorded)
	if err != nil {
		s.logger.WarnContext(ctx, "weather check failed", "supplier_id", sup.ID, "kind", compliance.KindOf(err), "err", err)
		return Result{}, err
	}

	var evaluated []int
	for i := range targets {
		if targets[i].Status == domain.StatusNonCompliant {
			evaluated = append(evaluated, i)
		}
	}

	// The weather call runs outside the lock, so each record is read again
	// under it and judged on its current status before anything is written.
	err = s.store.WithSupplierLock(ctx, sup.ID, func(ctx context.Context, tx ports.Store) error {
		for _, i := range evaluated {
			rec, err := tx.GetRecord(ctx, targets[i].ID)
			if err != nil {
				return err
			}
			check := &res.Checks[i]
			check.StatusBefore, check.Status = rec.Status, rec.Status
			if rec.Status != domain.StatusNonCompliant {
				check.Justification = compliance.Evaluate(domain.WeatherReport{}, &rec).Justification
				continue
			}
			ex := s.engine.Weather().Apply(ctx, report, at, &rec)
			check.Evaluated = true
			check.Exempt = ex.Exempt
			check.Justification = ex.Justification
			check.Status = rec.Status
			check.Analysis = rec.WeatherAnalysis
			if err := tx.SetWeatherOutcome(ctx, &rec); err != nil {
				return err
			}
		}
		if res.Exempted() == 0 {
			cur, err := tx.GetSupplier(ctx, sup.ID)
			if err != nil {
				return err
			}
			res.PreviousScore, res.Score = cur.ComplianceScore, cur.ComplianceScore
			return nil
		}
		return s.recompute(ctx, tx, sup.ID, &res)
	})
	if err != nil {
		return Result{}, err
	}
	res.Risk = compliance.RiskFor(res.Score)
	s.logger.InfoContext(ctx, "weather impact checked",
		"supplier_id", sup.ID, "records", len(targets), "exempted", res.Exempted(),
		"previous_score", res.PreviousScore, "score", res.Score, "simulated", report.Simulated)
	return res, nil
}

// ProcessRecord runs the weather check queued for one record. A record whose
// supplier has vanished is reported as an orphan.
func (s *Service) ProcessRecord(ctx context.Context, recordID int64) error {
	rec, err := s.store.GetRecord(ctx, recordID)
	if err != nil {
		return err
	}
	if _, err := s.store.GetSupplier(ctx, rec.SupplierID); errors.Is(err, ports.ErrNotFound) {
		return compliance.NewError(compliance.KindOrphanRecord, "weather.job", fmt.Errorf("record %d references supplier %d", rec.ID, rec.SupplierID))
	} else if err != nil {
		return err
	}
	_, err = s.CheckImpact(ctx, Request{SupplierID: rec.SupplierID, RecordID: &rec.ID})
	return err
}

func (s *Service) targets(ctx context.Context, req Request) ([]domain.ComplianceRecord, *time.Time, error) {
	if req.RecordID != nil {
		rec, err := s.store.GetRecord(ctx, *req.RecordID)
		if err != nil {
			return nil, nil, err
		}
		if rec.SupplierID != req.SupplierID {
			return nil, nil, fmt.Errorf("%w: record %d does not belong to supplier %d", ports.ErrNotFound, rec.ID, req.SupplierID)
		}
		d := rec.DateRecorded
		return []domain.ComplianceRecord{rec}, &d, nil
	}
	d := *req.DeliveryDate
	recs, err := s.store.ListRecords(ctx, ports.RecordFilter{
		SupplierID: &req.SupplierID,
		Status:     domain.StatusNonCompliant,
		From:       &d,
		To:         &d,
		Oldest:     true,
	})
	return recs, &d, err
}

// recompute rebuilds the score from the supplier's baseline and the history
// recorded since, so an exemption restores exactly the penalty it had cost.
func (s *Service) recompute(ctx context.Context, tx ports.Store, supplierID int64, res *Result) error {
	sup, err := tx.GetSupplier(ctx, supplierID)
	if err != nil {
		return err
	}
	history, err := tx.ListRecords(ctx, ports.RecordFilter{SupplierID: &supplierID, Oldest: true})
	if err != nil {
		return err
	}
	score, err := compliance.Rescore(sup, history)
	if err != nil {
		return err
	}
	res.PreviousScore = sup.ComplianceScore
	res.Score = score
	if score == sup.ComplianceScore {
		return nil
	}
	sup.ComplianceScore = score
	return tx.UpdateSupplier(ctx, &sup)
}
