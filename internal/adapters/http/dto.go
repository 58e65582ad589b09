package httpadapter

import (
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/compliance"
	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/domain"
	checksvc "github.com/AdityaDeshmukh2023/supplier-compliance/internal/services/checks"
	weathersvc "github.com/AdityaDeshmukh2023/supplier-compliance/internal/services/weather"
)

type Supplier struct {
	ID              int64               `json:"id"`
	Name            string              `json:"name"`
	Country         string              `json:"country"`
	ContractTerms   domain.Terms        `json:"contract_terms"`
	ComplianceScore int                 `json:"compliance_score"`
	RiskTier        domain.RiskTier     `json:"risk_tier"`
	LastAudit       *openapi_types.Date `json:"last_audit"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       *time.Time          `json:"updated_at"`
}

type SupplierWithRecords struct {
	Supplier
	ComplianceRecords []ComplianceRecord `json:"compliance_records"`
}

type SupplierCreate struct {
	Name            string              `json:"name"`
	Country         string              `json:"country"`
	ContractTerms   domain.Terms        `json:"contract_terms"`
	ComplianceScore *int                `json:"compliance_score"`
	LastAudit       *openapi_types.Date `json:"last_audit"`
}

// SupplierUpdate carries only the fields to change.
type SupplierUpdate struct {
	Name            *string             `json:"name"`
	Country         *string             `json:"country"`
	ContractTerms   domain.Terms        `json:"contract_terms"`
	ComplianceScore *int                `json:"compliance_score"`
	LastAudit       *openapi_types.Date `json:"last_audit"`
}

type ComplianceRecord struct {
	ID                   int64                   `json:"id"`
	SupplierID           int64                   `json:"supplier_id"`
	Metric               string                  `json:"metric"`
	DateRecorded         openapi_types.Date      `json:"date_recorded"`
	Result               float64                 `json:"result"`
	ExpectedValue        *float64                `json:"expected_value"`
	Status               domain.Status           `json:"status"`
	AIAnalysis           *domain.Narrative       `json:"ai_analysis"`
	WeatherData          *domain.WeatherAnalysis `json:"weather_data"`
	WeatherJustification *string                 `json:"weather_justification"`
	CreatedAt            time.Time               `json:"created_at"`
}

// Observation is one uploaded measurement. A status sent by the client is
// ignored; the verdict is always computed.
type Observation struct {
	Metric        string              `json:"metric"`
	DateRecorded  *openapi_types.Date `json:"date_recorded"`
	Result        *float64            `json:"result"`
	ExpectedValue *float64            `json:"expected_value"`
}

type ComplianceCheckRequest struct {
	SupplierID     int64         `json:"supplier_id"`
	ComplianceData []Observation `json:"compliance_data"`
}

type RecordError struct {
	Index  int    `json:"index"`
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

type ComplianceCheckResponse struct {
	SupplierID           int64              `json:"supplier_id"`
	ComplianceRecords    []ComplianceRecord `json:"compliance_records"`
	Errors               []RecordError      `json:"errors"`
	AIAnalysis           domain.Narrative   `json:"ai_analysis"`
	NarrativeUnavailable bool               `json:"narrative_unavailable"`
	PreviousScore        int                `json:"previous_compliance_score"`
	Score                int                `json:"updated_compliance_score"`
	RiskTier             domain.RiskTier    `json:"risk_tier"`
}

type RecordCreateResponse struct {
	ComplianceRecord
	Score    int             `json:"updated_compliance_score"`
	RiskTier domain.RiskTier `json:"risk_tier"`
}

type WeatherImpactRequest struct {
	SupplierID         int64               `json:"supplier_id"`
	ComplianceRecordID *int64              `json:"compliance_record_id"`
	Lat                *float64            `json:"lat"`
	Lon                *float64            `json:"lon"`
	DeliveryDate       *openapi_types.Date `json:"delivery_date"`
}

type WeatherRecordCheck struct {
	ComplianceRecordID int64                   `json:"compliance_record_id"`
	Metric             string                  `json:"metric"`
	PreviousStatus     domain.Status           `json:"previous_status"`
	Status             domain.Status           `json:"status"`
	Evaluated          bool                    `json:"evaluated"`
	Exempt             bool                    `json:"exempt"`
	Justification      string                  `json:"justification"`
	WeatherAnalysis    *domain.WeatherAnalysis `json:"weather_analysis"`
}

type WeatherImpactResponse struct {
	SupplierID    int64                `json:"supplier_id"`
	DeliveryDate  *openapi_types.Date  `json:"delivery_date"`
	Records       []WeatherRecordCheck `json:"records"`
	StatusUpdated bool                 `json:"status_updated"`
	Exempted      int                  `json:"exempted"`
	PreviousScore int                  `json:"previous_compliance_score"`
	Score         int                  `json:"updated_compliance_score"`
	RiskTier      domain.RiskTier      `json:"risk_tier"`
}

type ErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code"`
	RequestID string `json:"request_id,omitempty"`
}

func toDate(t *time.Time) *openapi_types.Date {
	if t == nil {
		return nil
	}
	return &openapi_types.Date{Time: *t}
}

func fromDate(d *openapi_types.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}

func toSupplier(s domain.Supplier) Supplier {
	terms := s.ContractTerms
	if terms == nil {
		terms = domain.Terms{}
	}
	return Supplier{
		ID:              s.ID,
		Name:            s.Name,
		Country:         s.Country,
		ContractTerms:   terms,
		ComplianceScore: s.ComplianceScore,
		RiskTier:        compliance.RiskFor(s.ComplianceScore),
		LastAudit:       toDate(s.LastAudit),
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

func toRecord(r domain.ComplianceRecord) ComplianceRecord {
	out := ComplianceRecord{
		ID:            r.ID,
		SupplierID:    r.SupplierID,
		Metric:        r.Metric,
		DateRecorded:  openapi_types.Date{Time: r.DateRecorded},
		Result:        r.Result,
		ExpectedValue: r.ExpectedValue,
		Status:        r.Status,
		AIAnalysis:    r.AIAnalysis,
		WeatherData:   r.WeatherAnalysis,
		CreatedAt:     r.CreatedAt,
	}
	if r.WeatherJustification != "" {
		j := r.WeatherJustification
		out.WeatherJustification = &j
	}
	return out
}

func toRecords(rs []domain.ComplianceRecord) []ComplianceRecord {
	out := make([]ComplianceRecord, len(rs))
	for i, r := range rs {
		out[i] = toRecord(r)
	}
	return out
}

// toObservation converts an upload. A missing date means today.
func toObservation(o Observation, today time.Time) domain.Observation {
	d := today
	if o.DateRecorded != nil {
		d = o.DateRecorded.Time
	}
	return domain.Observation{Metric: o.Metric, DateRecorded: d, Result: o.Result, ExpectedValue: o.ExpectedValue}
}

func toCheckResponse(res checksvc.BatchResult) ComplianceCheckResponse {
	out := ComplianceCheckResponse{
		SupplierID:           res.SupplierID,
		ComplianceRecords:    []ComplianceRecord{},
		Errors:               []RecordError{},
		AIAnalysis:           res.Narrative,
		NarrativeUnavailable: res.NarrativeUnavailable,
		PreviousScore:        res.PreviousScore,
		Score:                res.Score,
		RiskTier:             res.Risk,
	}
	for _, o := range res.Outcomes {
		if o.Record != nil {
			out.ComplianceRecords = append(out.ComplianceRecords, toRecord(*o.Record))
			continue
		}
		out.Errors = append(out.Errors, RecordError{Index: o.Index, Kind: string(compliance.KindOf(o.Err)), Detail: o.Err.Error()})
	}
	return out
}

func toWeatherResponse(res weathersvc.Result) WeatherImpactResponse {
	out := WeatherImpactResponse{
		SupplierID:    res.SupplierID,
		DeliveryDate:  toDate(res.DeliveryDate),
		Records:       make([]WeatherRecordCheck, len(res.Checks)),
		Exempted:      res.Exempted(),
		StatusUpdated: res.Exempted() > 0,
		PreviousScore: res.PreviousScore,
		Score:         res.Score,
		RiskTier:      res.Risk,
	}
	for i, c := range res.Checks {
		out.Records[i] = WeatherRecordCheck{
			ComplianceRecordID: c.RecordID,
			Metric:             c.Metric,
			PreviousStatus:     c.StatusBefore,
			Status:             c.Status,
			Evaluated:          c.Evaluated,
			Exempt:             c.Exempt,
			Justification:      c.Justification,
			WeatherAnalysis:    c.Analysis,
		}
	}
	return out
}
