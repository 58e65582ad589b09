package insights

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/compliance"
	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/domain"
	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/ports"
)

const (
	DefaultWindowDays = 90
	MaxWindowDays     = 3650
	// FleetRecordsPerSupplier caps how much history each supplier contributes
	// to a fleet report.
	FleetRecordsPerSupplier = 20
	SummaryWindowDays       = 30
	HighRiskBelow           = 60
	CompliantFrom           = 80
)

type Service struct {
	store   ports.Store
	engine  *compliance.Engine
	archive ports.ReportArchive
	logger  *slog.Logger
}

// New builds the service. archive may be nil.
func New(store ports.Store, engine *compliance.Engine, archive ports.ReportArchive, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, engine: engine, archive: archive, logger: logger.With("component", "insights")}
}

// Generate builds an insight report for one supplier or, with a nil
// supplierID, the fleet. days <= 0 selects the default window.
func (s *Service) Generate(ctx context.Context, supplierID *int64, days int) (domain.InsightReport, error) {
	if days <= 0 {
		days = DefaultWindowDays
	}
	if days > MaxWindowDays {
		return domain.InsightReport{}, fmt.Errorf("%w: days must be at most %d", ports.ErrInvalid, MaxWindowDays)
	}
	window := domain.LastDays(s.engine.Now(), days)
	scope := domain.FleetScope()
	if supplierID != nil {
		if _, err := s.store.GetSupplier(ctx, *supplierID); err != nil {
			return domain.InsightReport{}, err
		}
		scope = domain.SupplierScope(*supplierID)
	}

	suppliers, err := s.store.ListSuppliers(ctx, ports.Page{})
	if err != nil {
		return domain.InsightReport{}, err
	}
	records, err := s.store.ListRecords(ctx, ports.RecordFilter{SupplierID: supplierID, From: &window.From, To: &window.To})
	if err != nil {
		return domain.InsightReport{}, err
	}
	if scope.Fleet() {
		records = capPerSupplier(records, FleetRecordsPerSupplier)
	}

	report, err := s.engine.GenerateInsights(ctx, compliance.InsightInput{
		Scope:     scope,
		Window:    window,
		Suppliers: suppliers,
		Records:   records,
	})
	if err != nil {
		return domain.InsightReport{}, err
	}
	s.archiveReport(ctx, report)
	return report, nil
}

// archiveReport archives the report when an archive is configured. Failure is logged
// and never fails the request.
func (s *Service) archiveReport(ctx context.Context, report domain.InsightReport) {
	if s.archive == nil {
		return
	}
	body, err := json.Marshal(report)
	if err != nil {
		s.logger.WarnContext(ctx, "report not archived", "report_id", report.ID, "err", err)
		return
	}
	if err := s.archive.Put(ctx, ArchiveKey(report), bytes.NewReader(body), int64(len(body)), "application/json"); err != nil {
		s.logger.WarnContext(ctx, "report not archived", "report_id", report.ID, "err", err)
		return
	}
	s.logger.DebugContext(ctx, "report archived", "report_id", report.ID)
}

// ArchiveKey is the object key of an archived report.
func ArchiveKey(r domain.InsightReport) string {
	scope := r.Scope
	if r.SupplierID != nil {
		scope = fmt.Sprintf("supplier-%d", *r.SupplierID)
	}
	return fmt.Sprintf("insights/%s/%s/%s.json", scope, r.GeneratedAt.Format("2006-01-02"), r.ID)
}

// capPerSupplier keeps the first n records of each supplier. records arrive
// newest first, so those are the most recent.
func capPerSupplier(records []domain.ComplianceRecord, n int) []domain.ComplianceRecord {
	seen := map[int64]int{}
	out := records[:0:0]
	for _, r := range records {
		if seen[r.SupplierID] >= n {
			continue
		}
		seen[r.SupplierID]++
		out = append(out, r)
	}
	return out
}

// Summary is the fleet overview: score distribution plus the compliance rate
// of the last thirty days.
func (s *Service) Summary(ctx context.Context) (domain.Summary, error) {
	suppliers, err := s.store.ListSuppliers(ctx, ports.Page{})
	if err != nil {
		return domain.Summary{}, err
	}
	window := domain.LastDays(s.engine.Now(), SummaryWindowDays)
	recent, err := s.store.ListRecords(ctx, ports.RecordFilter{From: &window.From, To: &window.To})
	if err != nil {
		return domain.Summary{}, err
	}

	var sum domain.Summary
	sum.TotalSuppliers = len(suppliers)
	total := 0
	for _, sup := range suppliers {
		total += sup.ComplianceScore
		if sup.ComplianceScore < HighRiskBelow {
			sum.HighRiskSuppliers++
		}
		if sup.ComplianceScore >= CompliantFrom {
			sum.CompliantSuppliers++
		}
	}
	if len(suppliers) > 0 {
		sum.AverageScore = math.Round(float64(total)/float64(len(suppliers))*100) / 100
	}

	compliant, nonCompliant := 0, 0
	for _, r := range recent {
		switch r.Status {
		case domain.StatusCompliant:
			compliant++
		case domain.StatusNonCompliant:
			nonCompliant++
		}
	}
	sum.RecentRecords = len(recent)
	sum.RecentComplianceRate = compliance.Rate(compliant, nonCompliant)
	sum.Text = fmt.Sprintf(
		"%d suppliers with an average compliance score of %.2f. %d are high risk and %d are compliant. "+
			"Compliance over the last %d days is %.2f%% across %d records.",
		sum.TotalSuppliers, sum.AverageScore, sum.HighRiskSuppliers, sum.CompliantSuppliers,
		SummaryWindowDays, sum.RecentComplianceRate, sum.RecentRecords)
	return sum, nil
}
