package suppliers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/compliance"
	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/domain"
	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/ports"
)

// DefaultLimit bounds list calls that do not ask for a page size.
const DefaultLimit = 100

type Service struct {
	store  ports.Store
	logger *slog.Logger
}

func New(store ports.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger.With("component", "suppliers")}
}

// CreateInput holds a new supplier. A nil score starts at the default.
type CreateInput struct {
	Name            string
	Country         string
	ContractTerms   domain.Terms
	ComplianceScore *int
	LastAudit       *time.Time
}

// Patch changes only the fields that are set.
type Patch struct {
	Name            *string
	Country         *string
	ContractTerms   domain.Terms
	ComplianceScore *int
	LastAudit       *time.Time
}

func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Supplier, error) {
	sup := domain.Supplier{
		Name:            strings.TrimSpace(in.Name),
		Country:         strings.TrimSpace(in.Country),
		ContractTerms:   in.ContractTerms,
		ComplianceScore: compliance.DefaultScore,
		LastAudit:       in.LastAudit,
	}
	if in.ComplianceScore != nil {
		sup.ComplianceScore = *in.ComplianceScore
	}
	if err := validate(sup); err != nil {
		return domain.Supplier{}, err
	}
	if err := s.store.CreateSupplier(ctx, &sup); err != nil {
		return domain.Supplier{}, err
	}
	s.logger.InfoContext(ctx, "supplier created", "supplier_id", sup.ID, "name", sup.Name)
	return sup, nil
}

// Get returns the supplier with its records, newest first.
func (s *Service) Get(ctx context.Context, id int64) (domain.Supplier, []domain.ComplianceRecord, error) {
	sup, err := s.store.GetSupplier(ctx, id)
	if err != nil {
		return domain.Supplier{}, nil, err
	}
	records, err := s.store.ListRecords(ctx, ports.RecordFilter{SupplierID: &id})
	if err != nil {
		return domain.Supplier{}, nil, err
	}
	return sup, records, nil
}

func (s *Service) List(ctx context.Context, page ports.Page) ([]domain.Supplier, error) {
	if page.Skip < 0 || page.Limit < 0 {
		return nil, fmt.Errorf("%w: skip and limit must not be negative", ports.ErrInvalid)
	}
	if page.Limit == 0 {
		page.Limit = DefaultLimit
	}
	return s.store.ListSuppliers(ctx, page)
}

// Update applies p under the supplier lock so it cannot race a score update.
func (s *Service) Update(ctx context.Context, id int64, p Patch) (domain.Supplier, error) {
	var out domain.Supplier
	err := s.store.WithSupplierLock(ctx, id, func(ctx context.Context, tx ports.Store) error {
		sup, err := tx.GetSupplier(ctx, id)
		if err != nil {
			return err
		}
		if p.Name != nil {
			sup.Name = strings.TrimSpace(*p.Name)
		}
		if p.Country != nil {
			sup.Country = strings.TrimSpace(*p.Country)
		}
		if p.ContractTerms != nil {
			sup.ContractTerms = p.ContractTerms
		}
		if p.ComplianceScore != nil {
			// a score set by hand is the new baseline for later rescoring
			last, err := lastRecordID(ctx, tx, id)
			if err != nil {
				return err
			}
			sup.ComplianceScore = *p.ComplianceScore
			sup.ScoreBaseline, sup.BaselineRecordID = sup.ComplianceScore, last
		}
		if p.LastAudit != nil {
			sup.LastAudit = p.LastAudit
		}
		if err := validate(sup); err != nil {
			return err
		}
		if err := tx.UpdateSupplier(ctx, &sup); err != nil {
			return err
		}
		out = sup
		return nil
	})
	return out, err
}

// Delete removes the supplier and all of its records.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeleteSupplier(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "supplier deleted", "supplier_id", id)
	return nil
}

func lastRecordID(ctx context.Context, store ports.Store, supplierID int64) (int64, error) {
	records, err := store.ListRecords(ctx, ports.RecordFilter{SupplierID: &supplierID})
	if err != nil {
		return 0, err
	}
	var last int64
	for _, r := range records {
		last = max(last, r.ID)
	}
	return last, nil
}

func validate(sup domain.Supplier) error {
	if sup.Name == "" {
		return fmt.Errorf("%w: name is required", ports.ErrInvalid)
	}
	if sup.Country == "" {
		return fmt.Errorf("%w: country is required", ports.ErrInvalid)
	}
	// a caller-supplied score out of range is bad input, not a broken invariant
	if err := compliance.CheckBounds(sup.ComplianceScore); err != nil {
		return fmt.Errorf("%w: %v", ports.ErrInvalid, err)
	}
	return nil
}
