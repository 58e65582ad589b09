package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/domain"
	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/ports"
	suppliersvc "github.com/AdityaDeshmukh2023/supplier-compliance/internal/services/suppliers"
	weathersvc "github.com/AdityaDeshmukh2023/supplier-compliance/internal/services/weather"
)

const maxBodyBytes = 1 << 20

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		if err := s.ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) listSuppliers(w http.ResponseWriter, r *http.Request) {
	page, err := pageFrom(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sups, err := s.suppliers.List(r.Context(), page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]Supplier, len(sups))
	for i, sup := range sups {
		out[i] = toSupplier(sup)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createSupplier(w http.ResponseWriter, r *http.Request) {
	var body SupplierCreate
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	sup, err := s.suppliers.Create(r.Context(), suppliersvc.CreateInput{
		Name:            body.Name,
		Country:         body.Country,
		ContractTerms:   body.ContractTerms,
		ComplianceScore: body.ComplianceScore,
		LastAudit:       fromDate(body.LastAudit),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSupplier(sup))
}

func (s *Server) getSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sup, records, err := s.suppliers.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SupplierWithRecords{Supplier: toSupplier(sup), ComplianceRecords: toRecords(records)})
}

func (s *Server) updateSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body SupplierUpdate
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	sup, err := s.suppliers.Update(r.Context(), id, suppliersvc.Patch{
		Name:            body.Name,
		Country:         body.Country,
		ContractTerms:   body.ContractTerms,
		ComplianceScore: body.ComplianceScore,
		LastAudit:       fromDate(body.LastAudit),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSupplier(sup))
}

func (s *Server) deleteSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.suppliers.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("supplier %d deleted", id)})
}

func (s *Server) checkCompliance(w http.ResponseWriter, r *http.Request) {
	var body ComplianceCheckRequest
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	today := s.clock().UTC()
	obs := make([]domain.Observation, len(body.ComplianceData))
	for i, o := range body.ComplianceData {
		obs[i] = toObservation(o, today)
	}
	res, err := s.checks.CheckCompliance(r.Context(), body.SupplierID, obs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCheckResponse(res))
}

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	page, err := pageFrom(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	records, err := s.checks.ListRecords(r.Context(), id, strings.TrimSpace(r.URL.Query().Get("metric")), page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecords(records))
}

func (s *Server) createRecord(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body Observation
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, res, err := s.checks.CreateRecord(r.Context(), id, toObservation(body, s.clock().UTC()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, RecordCreateResponse{ComplianceRecord: toRecord(rec), Score: res.Score, RiskTier: res.Risk})
}

func (s *Server) checkWeatherImpact(w http.ResponseWriter, r *http.Request) {
	var body WeatherImpactRequest
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.weather.CheckImpact(r.Context(), weathersvc.Request{
		SupplierID:   body.SupplierID,
		RecordID:     body.ComplianceRecordID,
		DeliveryDate: fromDate(body.DeliveryDate),
		Lat:          body.Lat,
		Lon:          body.Lon,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWeatherResponse(res))
}

func (s *Server) getInsights(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var supplierID *int64
	if raw := q.Get("supplier_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: supplier_id must be an integer", ports.ErrInvalid))
			return
		}
		supplierID = &id
	}
	days, err := queryInt(r, "time_period_days")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if days < 0 {
		s.writeError(w, r, fmt.Errorf("%w: time_period_days must be positive", ports.ErrInvalid))
		return
	}
	report, err := s.insights.Generate(r.Context(), supplierID, days)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) complianceSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.insights.Summary(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: supplier id must be a positive integer", ports.ErrInvalid)
	}
	return id, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ports.ErrInvalid, name)
	}
	return v, nil
}

func pageFrom(r *http.Request) (ports.Page, error) {
	skip, err := queryInt(r, "skip")
	if err != nil {
		return ports.Page{}, err
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		return ports.Page{}, err
	}
	return ports.Page{Skip: skip, Limit: limit}, nil
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: missing body", ports.ErrInvalid)
		}
		return fmt.Errorf("%w: %v", ports.ErrInvalid, err)
	}
	return nil
}
