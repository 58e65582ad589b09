package domain

import "time"

// Core domain models. Transport DTOs live in internal/adapters/http; keep these
// decoupled from wire formats.

// Status is the compliance verdict of one observation.
type Status string

const (
	StatusCompliant      Status = "compliant"
	StatusNonCompliant   Status = "non-compliant"
	StatusExcusedWeather Status = "excused-weather"
)

// Valid reports whether s is one of the three known verdicts.
func (s Status) Valid() bool {
	switch s {
	case StatusCompliant, StatusNonCompliant, StatusExcusedWeather:
		return true
	}
	return false
}

// RiskTier is the coarse bucket derived from a compliance score.
type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

// Valid reports whether r is low, medium or high.
func (r RiskTier) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

type Supplier struct {
	ID              int64
	Name            string
	Country         string
	ContractTerms   Terms
	ComplianceScore int
	// ScoreBaseline is the score as set at creation or by hand. Verdicts of
	// records with an ID above BaselineRecordID are applied on top of it.
	ScoreBaseline    int
	BaselineRecordID int64
	LastAudit        *time.Time
	CreatedAt        time.Time
	UpdatedAt        *time.Time
}

// Observation is one incoming measurement before classification.
// Result is a pointer so a missing value can be told apart from zero.
type Observation struct {
	Metric        string
	DateRecorded  time.Time
	Result        *float64
	ExpectedValue *float64
}

type ComplianceRecord struct {
	ID                   int64
	SupplierID           int64
	Metric               string
	DateRecorded         time.Time
	Result               float64
	ExpectedValue        *float64
	Status               Status
	AIAnalysis           *Narrative
	WeatherAnalysis      *WeatherAnalysis
	WeatherJustification string
	CreatedAt            time.Time
}

// ContractAdjustment is a suggested change to one contract term.
type ContractAdjustment struct {
	Term            string `json:"term"`
	SuggestedChange string `json:"suggested_change"`
	Rationale       string `json:"rationale,omitempty"`
}

// Narrative is advisory output of the generative analysis collaborator after
// validation. RiskAssessment and ScoreSuggestion are suggestions only and never
// replace the locally computed score or tier.
type Narrative struct {
	Recommendations     []string             `json:"recommendations"`
	KeyIssues           []string             `json:"key_issues"`
	RiskAssessment      RiskTier             `json:"risk_assessment,omitempty"`
	ScoreSuggestion     *int                 `json:"compliance_score_suggestion,omitempty"`
	ContractAdjustments []ContractAdjustment `json:"contract_adjustments"`
	Summary             string               `json:"summary,omitempty"`
}

// Empty reports whether the narrative carries no content at all.
func (n Narrative) Empty() bool {
	return len(n.Recommendations) == 0 && len(n.KeyIssues) == 0 &&
		n.RiskAssessment == "" && n.ScoreSuggestion == nil &&
		len(n.ContractAdjustments) == 0 && n.Summary == ""
}
