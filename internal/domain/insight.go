package domain

import "time"

// Scope selects a single supplier or, when SupplierID is nil, the whole fleet.
type Scope struct {
	SupplierID *int64
}

func FleetScope() Scope { return Scope{} }

func SupplierScope(id int64) Scope { return Scope{SupplierID: &id} }

func (s Scope) Fleet() bool { return s.SupplierID == nil }

func (s Scope) String() string {
	if s.Fleet() {
		return "fleet"
	}
	return "supplier"
}

// Window is a closed date range [From, To].
type Window struct {
	From time.Time
	To   time.Time
}

// LastDays returns the window covering the days before and including end.
func LastDays(end time.Time, days int) Window {
	end = truncateDay(end)
	return Window{From: end.AddDate(0, 0, -days), To: end}
}

// Days is the length of the window in whole days.
func (w Window) Days() int {
	return int(truncateDay(w.To).Sub(truncateDay(w.From)).Hours() / 24)
}

// Contains reports whether t falls on a day inside the window.
func (w Window) Contains(t time.Time) bool {
	d := truncateDay(t)
	return !d.Before(truncateDay(w.From)) && !d.After(truncateDay(w.To))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// MetricIssue counts non-compliant records for one metric.
type MetricIssue struct {
	Metric string `json:"metric"`
	Count  int    `json:"count"`
}

// Standing is a supplier's authoritative score and tier.
type Standing struct {
	SupplierID int64    `json:"supplier_id"`
	Name       string   `json:"name"`
	Score      int      `json:"compliance_score"`
	Risk       RiskTier `json:"risk_tier"`
}

// Aggregates are the deterministic figures computed locally. They are the only
// input handed to the generative analysis collaborator.
type Aggregates struct {
	Scope          string        `json:"scope"`
	WindowDays     int           `json:"analysis_period_days"`
	SuppliersCount int           `json:"suppliers_analyzed"`
	Compliant      int           `json:"compliant_records"`
	NonCompliant   int           `json:"non_compliant_records"`
	Excused        int           `json:"excused_weather_records"`
	ComplianceRate float64       `json:"overall_compliance_rate"`
	AverageScore   float64       `json:"average_compliance_score"`
	MetricIssues   []MetricIssue `json:"metric_issues"`
	BestPerformers []Standing    `json:"best_performers"`
	AtRisk         []Standing    `json:"at_risk_suppliers"`
}

// Total is the number of records analysed, excused ones included.
func (a Aggregates) Total() int { return a.Compliant + a.NonCompliant + a.Excused }

// SkippedRecord names a record left out of a computation and why.
type SkippedRecord struct {
	RecordID   int64  `json:"record_id"`
	SupplierID int64  `json:"supplier_id"`
	Kind       string `json:"kind"`
	Reason     string `json:"reason"`
}

// InsightReport is the structured output of insight generation. Trends and
// Standing are authoritative; Narrative is advisory.
type InsightReport struct {
	ID                   string          `json:"id"`
	GeneratedAt          time.Time       `json:"generated_at"`
	Scope                string          `json:"scope"`
	SupplierID           *int64          `json:"supplier_id,omitempty"`
	WindowFrom           time.Time       `json:"window_from"`
	WindowTo             time.Time       `json:"window_to"`
	Trends               Aggregates      `json:"compliance_trends"`
	Standing             *Standing       `json:"standing,omitempty"`
	Narrative            Narrative       `json:"narrative"`
	NarrativeUnavailable bool            `json:"narrative_unavailable"`
	Skipped              []SkippedRecord `json:"skipped,omitempty"`
}

// Summary is the fleet-wide compliance overview.
type Summary struct {
	TotalSuppliers       int     `json:"total_suppliers"`
	AverageScore         float64 `json:"average_compliance_score"`
	HighRiskSuppliers    int     `json:"high_risk_suppliers"`
	CompliantSuppliers   int     `json:"compliant_suppliers"`
	RecentComplianceRate float64 `json:"recent_compliance_rate"`
	RecentRecords        int     `json:"recent_records_count"`
	Text                 string  `json:"summary"`
}
