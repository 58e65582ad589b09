// Package httpadapter exposes the compliance services over REST.
package httpadapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/domain"
	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/ports"
	checksvc "github.com/AdityaDeshmukh2023/supplier-compliance/internal/services/checks"
	suppliersvc "github.com/AdityaDeshmukh2023/supplier-compliance/internal/services/suppliers"
	weathersvc "github.com/AdityaDeshmukh2023/supplier-compliance/internal/services/weather"
)

type Suppliers interface {
	Create(ctx context.Context, in suppliersvc.CreateInput) (domain.Supplier, error)
	Get(ctx context.Context, id int64) (domain.Supplier, []domain.ComplianceRecord, error)
	List(ctx context.Context, page ports.Page) ([]domain.Supplier, error)
	Update(ctx context.Context, id int64, p suppliersvc.Patch) (domain.Supplier, error)
	Delete(ctx context.Context, id int64) error
}

type Checks interface {
	CheckCompliance(ctx context.Context, supplierID int64, obs []domain.Observation) (checksvc.BatchResult, error)
	CreateRecord(ctx context.Context, supplierID int64, obs domain.Observation) (domain.ComplianceRecord, checksvc.BatchResult, error)
	ListRecords(ctx context.Context, supplierID int64, metric string, page ports.Page) ([]domain.ComplianceRecord, error)
}

type WeatherChecks interface {
	CheckImpact(ctx context.Context, req weathersvc.Request) (weathersvc.Result, error)
}

type Insights interface {
	Generate(ctx context.Context, supplierID *int64, days int) (domain.InsightReport, error)
	Summary(ctx context.Context) (domain.Summary, error)
}

// Server holds the services behind the REST routes.
type Server struct {
	suppliers Suppliers
	checks    Checks
	weather   WeatherChecks
	insights  Insights
	ping      func(context.Context) error
	logger    *slog.Logger
	clock     func() time.Time
}

// New builds the server. ping may be nil; when set /health reports its result.
func New(suppliers Suppliers, checks Checks, weather WeatherChecks, insights Insights, ping func(context.Context) error, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		suppliers: suppliers,
		checks:    checks,
		weather:   weather,
		insights:  insights,
		ping:      ping,
		logger:    logger.With("component", "http"),
		clock:     time.Now,
	}
}

// Routes returns the chi router with every endpoint mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID, s.requestLog, middleware.Recoverer)

	r.Get("/health", s.health)
	r.Route("/suppliers", func(r chi.Router) {
		r.Get("/", s.listSuppliers)
		r.Post("/", s.createSupplier)
		r.Post("/check-compliance", s.checkCompliance)
		r.Post("/check-weather-impact", s.checkWeatherImpact)
		r.Get("/insights", s.getInsights)
		r.Get("/compliance-summary", s.complianceSummary)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getSupplier)
			r.Put("/", s.updateSupplier)
			r.Delete("/", s.deleteSupplier)
			r.Get("/compliance-records", s.listRecords)
			r.Post("/compliance-record", s.createRecord)
		})
	})
	return r
}

// Run serves handler on addr until ctx is cancelled, then shuts down within
// shutdownTimeout.
func Run(ctx context.Context, logger *slog.Logger, addr string, handler http.Handler, shutdownTimeout time.Duration) error {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		// narratives may take a while
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type ctxKeyRequestID struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID{}).(string)
	return id
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID{}, id)))
	})
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		attrs := []any{
			"request_id", requestIDFrom(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if ww.Status() >= 500 {
			s.logger.ErrorContext(r.Context(), "http request", attrs...)
			return
		}
		s.logger.InfoContext(r.Context(), "http request", attrs...)
	})
}
