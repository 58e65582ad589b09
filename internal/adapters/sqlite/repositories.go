package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/domain"
	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/ports"
)

var _ ports.Store = (*Store)(nil)

const supplierColumns = `id, name, country, contract_terms, compliance_score, score_baseline, baseline_record_id,
    last_audit, created_at, updated_at`

const recordColumns = `id, supplier_id, metric, date_recorded, result, expected_value, status,
    ai_analysis, weather_analysis, weather_justification, created_at`

type scanner interface {
	Scan(dest ...any) error
}

// CreateSupplier stores a new supplier. Its starting score becomes the
// baseline; there are no records yet.
func (s *Store) CreateSupplier(ctx context.Context, sup *domain.Supplier) error {
	terms, err := json.Marshal(termsOrEmpty(sup.ContractTerms))
	if err != nil {
		return err
	}
	sup.ScoreBaseline, sup.BaselineRecordID = sup.ComplianceScore, 0
	now := s.now()
	res, err := s.q.ExecContext(ctx, `
        INSERT INTO suppliers (name, country, contract_terms, compliance_score, score_baseline, baseline_record_id, last_audit, created_at)
        VALUES (?, ?, ?, ?, ?, 0, ?, ?)
    `, sup.Name, sup.Country, string(terms), sup.ComplianceScore, sup.ScoreBaseline, formatTime(sup.LastAudit), now)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: supplier %q already exists", ports.ErrConflict, sup.Name)
	}
	if err != nil {
		return err
	}
	if sup.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	sup.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

func (s *Store) GetSupplier(ctx context.Context, id int64) (domain.Supplier, error) {
	return scanSupplier(s.q.QueryRowContext(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE id = ?`, id))
}

func (s *Store) ListSuppliers(ctx context.Context, page ports.Page) ([]domain.Supplier, error) {
	query, args := paginate(`SELECT `+supplierColumns+` FROM suppliers ORDER BY id`, nil, page)
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := []domain.Supplier{}
	for rows.Next() {
		sup, err := scanSupplier(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sup)
	}
	return out, rows.Err()
}

func (s *Store) UpdateSupplier(ctx context.Context, sup *domain.Supplier) error {
	terms, err := json.Marshal(termsOrEmpty(sup.ContractTerms))
	if err != nil {
		return err
	}
	now := s.now()
	res, err := s.q.ExecContext(ctx, `
        UPDATE suppliers
        SET name = ?, country = ?, contract_terms = ?, compliance_score = ?, score_baseline = ?, baseline_record_id = ?,
            last_audit = ?, updated_at = ?
        WHERE id = ?
    `, sup.Name, sup.Country, string(terms), sup.ComplianceScore, sup.ScoreBaseline, sup.BaselineRecordID,
		formatTime(sup.LastAudit), now, sup.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: supplier %q already exists", ports.ErrConflict, sup.Name)
	}
	if err := affectedOne(res, err); err != nil {
		return err
	}
	t, _ := time.Parse(timeLayout, now)
	sup.UpdatedAt = &t
	return nil
}

func (s *Store) DeleteSupplier(ctx context.Context, id int64) error {
	// compliance_records and weather_checks cascade
	res, err := s.q.ExecContext(ctx, `DELETE FROM suppliers WHERE id = ?`, id)
	return affectedOne(res, err)
}

func (s *Store) InsertRecord(ctx context.Context, r *domain.ComplianceRecord) error {
	ai, weather, err := payloads(r)
	if err != nil {
		return err
	}
	now := s.now()
	res, err := s.q.ExecContext(ctx, `
        INSERT INTO compliance_records
            (supplier_id, metric, date_recorded, result, expected_value, status, ai_analysis, weather_analysis, weather_justification, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, r.SupplierID, r.Metric, r.DateRecorded.UTC().Format(dateLayout), r.Result, r.ExpectedValue, string(r.Status),
		ai, weather, r.WeatherJustification, now)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: supplier %d", ports.ErrNotFound, r.SupplierID)
	}
	if err != nil {
		return err
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	r.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

func (s *Store) GetRecord(ctx context.Context, id int64) (domain.ComplianceRecord, error) {
	return scanRecord(s.q.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM compliance_records WHERE id = ?`, id))
}

func (s *Store) SetAIAnalysis(ctx context.Context, recordID int64, n *domain.Narrative) error {
	ai, _, err := payloads(&domain.ComplianceRecord{AIAnalysis: n})
	if err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx, `UPDATE compliance_records SET ai_analysis = ? WHERE id = ?`, ai, recordID)
	return affectedOne(res, err)
}

func (s *Store) SetWeatherOutcome(ctx context.Context, r *domain.ComplianceRecord) error {
	_, weather, err := payloads(&domain.ComplianceRecord{WeatherAnalysis: r.WeatherAnalysis})
	if err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx, `
        UPDATE compliance_records
        SET status = ?, weather_analysis = ?, weather_justification = ?
        WHERE id = ?
    `, string(r.Status), weather, r.WeatherJustification, r.ID)
	return affectedOne(res, err)
}

func (s *Store) ListRecords(ctx context.Context, f ports.RecordFilter) ([]domain.ComplianceRecord, error) {
	var where []string
	var args []any
	if f.SupplierID != nil {
		where, args = append(where, "supplier_id = ?"), append(args, *f.SupplierID)
	}
	if f.Metric != "" {
		where, args = append(where, "metric = ?"), append(args, f.Metric)
	}
	if f.Status != "" {
		where, args = append(where, "status = ?"), append(args, string(f.Status))
	}
	if f.From != nil {
		where, args = append(where, "date_recorded >= ?"), append(args, f.From.UTC().Format(dateLayout))
	}
	if f.To != nil {
		where, args = append(where, "date_recorded <= ?"), append(args, f.To.UTC().Format(dateLayout))
	}
	query := `SELECT ` + recordColumns + ` FROM compliance_records`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	if f.Oldest {
		query += ` ORDER BY date_recorded ASC, id ASC`
	} else {
		query += ` ORDER BY date_recorded DESC, id DESC`
	}
	query, args = paginate(query, args, f.Page)

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := []domain.ComplianceRecord{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// WithSupplierLock runs fn in a transaction. With a single connection the
// transaction excludes every other writer. Nested calls reuse it.
func (s *Store) WithSupplierLock(ctx context.Context, supplierID int64, fn func(ctx context.Context, tx ports.Store) error) (err error) {
	if s.inTx {
		if _, err := s.GetSupplier(ctx, supplierID); err != nil {
			return err
		}
		return fn(ctx, s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()
	bound := &Store{db: s.db, q: tx, inTx: true, clock: s.clock}
	if _, err = bound.GetSupplier(ctx, supplierID); err != nil {
		return err
	}
	return fn(ctx, bound)
}

func scanSupplier(row scanner) (domain.Supplier, error) {
	var sup domain.Supplier
	var terms, created string
	var lastAudit, updated sql.NullString
	err := row.Scan(&sup.ID, &sup.Name, &sup.Country, &terms, &sup.ComplianceScore, &sup.ScoreBaseline, &sup.BaselineRecordID,
		&lastAudit, &created, &updated)
	if isNoRows(err) {
		return sup, ports.ErrNotFound
	}
	if err != nil {
		return sup, err
	}
	if err := json.Unmarshal([]byte(terms), &sup.ContractTerms); err != nil {
		return sup, fmt.Errorf("supplier %d contract_terms: %w", sup.ID, err)
	}
	if sup.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return sup, err
	}
	if sup.LastAudit, err = parseTime(lastAudit); err != nil {
		return sup, err
	}
	if sup.UpdatedAt, err = parseTime(updated); err != nil {
		return sup, err
	}
	return sup, nil
}

func scanRecord(row scanner) (domain.ComplianceRecord, error) {
	var r domain.ComplianceRecord
	var date, status, created string
	var expected sql.NullFloat64
	var ai, weather sql.NullString
	err := row.Scan(&r.ID, &r.SupplierID, &r.Metric, &date, &r.Result, &expected, &status,
		&ai, &weather, &r.WeatherJustification, &created)
	if isNoRows(err) {
		return r, ports.ErrNotFound
	}
	if err != nil {
		return r, err
	}
	r.Status = domain.Status(status)
	if expected.Valid {
		v := expected.Float64
		r.ExpectedValue = &v
	}
	if r.DateRecorded, err = time.Parse(dateLayout, date); err != nil {
		return r, err
	}
	if r.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return r, err
	}
	if ai.Valid {
		r.AIAnalysis = new(domain.Narrative)
		if err := json.Unmarshal([]byte(ai.String), r.AIAnalysis); err != nil {
			return r, fmt.Errorf("record %d ai_analysis: %w", r.ID, err)
		}
	}
	if weather.Valid {
		r.WeatherAnalysis = new(domain.WeatherAnalysis)
		if err := json.Unmarshal([]byte(weather.String), r.WeatherAnalysis); err != nil {
			return r, fmt.Errorf("record %d weather_analysis: %w", r.ID, err)
		}
	}
	return r, nil
}

func payloads(r *domain.ComplianceRecord) (ai, weather any, err error) {
	if r.AIAnalysis != nil {
		b, err := json.Marshal(r.AIAnalysis)
		if err != nil {
			return nil, nil, err
		}
		ai = string(b)
	}
	if r.WeatherAnalysis != nil {
		b, err := json.Marshal(r.WeatherAnalysis)
		if err != nil {
			return nil, nil, err
		}
		weather = string(b)
	}
	return ai, weather, nil
}

func paginate(query string, args []any, page ports.Page) (string, []any) {
	switch {
	case page.Limit > 0:
		query += ` LIMIT ?`
		args = append(args, page.Limit)
	case page.Skip > 0:
		// OFFSET needs a LIMIT in SQLite
		query += ` LIMIT -1`
	}
	if page.Skip > 0 {
		query += ` OFFSET ?`
		args = append(args, page.Skip)
	}
	return query, args
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func termsOrEmpty(t domain.Terms) domain.Terms {
	if t == nil {
		return domain.Terms{}
	}
	return t
}
