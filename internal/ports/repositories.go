package ports

import (
	"context"
	"errors"
	"time"

	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/domain"
)

var (
	// ErrNotFound is returned by repositories when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint (supplier name) is hit.
	ErrConflict = errors.New("conflict")
	// ErrInvalid is returned by services for malformed requests.
	ErrInvalid = errors.New("invalid request")
)

// Page bounds list queries.
type Page struct {
	Skip  int
	Limit int
}

// RecordFilter narrows record listings. Zero values mean "no filter".
type RecordFilter struct {
	SupplierID *int64
	Metric     string
	Status     domain.Status
	From       *time.Time
	To         *time.Time
	// Oldest returns records oldest first (history order) instead of newest first.
	Oldest bool
	Page   Page
}

// SupplierRepository stores suppliers.
type SupplierRepository interface {
	CreateSupplier(ctx context.Context, s *domain.Supplier) error
	GetSupplier(ctx context.Context, id int64) (domain.Supplier, error)
	ListSuppliers(ctx context.Context, page Page) ([]domain.Supplier, error)
	UpdateSupplier(ctx context.Context, s *domain.Supplier) error
	// DeleteSupplier removes the supplier together with its records.
	DeleteSupplier(ctx context.Context, id int64) error
}

// RecordRepository stores compliance records. After insert only the
// narrative and the weather outcome change, each written on its own so one
// never overwrites the other.
type RecordRepository interface {
	InsertRecord(ctx context.Context, r *domain.ComplianceRecord) error
	GetRecord(ctx context.Context, id int64) (domain.ComplianceRecord, error)
	// SetAIAnalysis writes only the narrative payload.
	SetAIAnalysis(ctx context.Context, recordID int64, n *domain.Narrative) error
	// SetWeatherOutcome writes only status, weather analysis and justification.
	SetWeatherOutcome(ctx context.Context, r *domain.ComplianceRecord) error
	ListRecords(ctx context.Context, f RecordFilter) ([]domain.ComplianceRecord, error)
}

// Store is the persistence collaborator.
type Store interface {
	SupplierRepository
	RecordRepository
	// WithSupplierLock runs fn in a transaction holding an exclusive lock on
	// the supplier row, serializing score updates per supplier. The Store
	// passed to fn is bound to that transaction.
	WithSupplierLock(ctx context.Context, supplierID int64, fn func(ctx context.Context, tx Store) error) error
}
