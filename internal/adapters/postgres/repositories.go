package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/domain"
	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/ports"
)

var _ ports.Store = (*DB)(nil)

const supplierColumns = `id, name, country, contract_terms, compliance_score, score_baseline, baseline_record_id,
    last_audit, created_at, updated_at`

const recordColumns = `id, supplier_id, metric, date_recorded, result, expected_value, status,
    ai_analysis, weather_analysis, weather_justification, created_at`

// SupplierRepository

// CreateSupplier stores a new supplier. Its starting score becomes the
// baseline; there are no records yet.
func (db *DB) CreateSupplier(ctx context.Context, s *domain.Supplier) error {
	terms, err := json.Marshal(termsOrEmpty(s.ContractTerms))
	if err != nil {
		return err
	}
	s.ScoreBaseline, s.BaselineRecordID = s.ComplianceScore, 0
	err = db.q.QueryRow(ctx, `
        INSERT INTO suppliers (name, country, contract_terms, compliance_score, score_baseline, baseline_record_id, last_audit)
        VALUES ($1, $2, $3, $4, $4, 0, $5)
        RETURNING id, created_at
    `, s.Name, s.Country, terms, s.ComplianceScore, s.LastAudit).Scan(&s.ID, &s.CreatedAt)
	return mapErr(err)
}

func (db *DB) GetSupplier(ctx context.Context, id int64) (domain.Supplier, error) {
	row := db.q.QueryRow(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE id = $1`, id)
	return scanSupplier(row)
}

func (db *DB) ListSuppliers(ctx context.Context, page ports.Page) ([]domain.Supplier, error) {
	query := `SELECT ` + supplierColumns + ` FROM suppliers ORDER BY id`
	args := []any{}
	query, args = paginate(query, args, page)
	rows, err := db.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Supplier{}
	for rows.Next() {
		s, err := scanSupplier(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (db *DB) UpdateSupplier(ctx context.Context, s *domain.Supplier) error {
	terms, err := json.Marshal(termsOrEmpty(s.ContractTerms))
	if err != nil {
		return err
	}
	err = db.q.QueryRow(ctx, `
        UPDATE suppliers
        SET name = $2, country = $3, contract_terms = $4, compliance_score = $5,
            score_baseline = $6, baseline_record_id = $7, last_audit = $8, updated_at = now()
        WHERE id = $1
        RETURNING updated_at
    `, s.ID, s.Name, s.Country, terms, s.ComplianceScore, s.ScoreBaseline, s.BaselineRecordID, s.LastAudit).Scan(&s.UpdatedAt)
	return mapErr(err)
}

func (db *DB) DeleteSupplier(ctx context.Context, id int64) error {
	// compliance_records and weather_checks cascade
	tag, err := db.q.Exec(ctx, `DELETE FROM suppliers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// RecordRepository

func (db *DB) InsertRecord(ctx context.Context, r *domain.ComplianceRecord) error {
	ai, err := marshalNullable(r.AIAnalysis)
	if err != nil {
		return err
	}
	weather, err := marshalNullable(r.WeatherAnalysis)
	if err != nil {
		return err
	}
	err = db.q.QueryRow(ctx, `
        INSERT INTO compliance_records
            (supplier_id, metric, date_recorded, result, expected_value, status, ai_analysis, weather_analysis, weather_justification)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id, created_at
    `, r.SupplierID, r.Metric, r.DateRecorded, r.Result, r.ExpectedValue, string(r.Status), ai, weather, r.WeatherJustification,
	).Scan(&r.ID, &r.CreatedAt)
	return mapErr(err)
}

func (db *DB) GetRecord(ctx context.Context, id int64) (domain.ComplianceRecord, error) {
	row := db.q.QueryRow(ctx, `SELECT `+recordColumns+` FROM compliance_records WHERE id = $1`, id)
	return scanRecord(row)
}

func (db *DB) SetAIAnalysis(ctx context.Context, recordID int64, n *domain.Narrative) error {
	ai, err := marshalNullable(n)
	if err != nil {
		return err
	}
	tag, err := db.q.Exec(ctx, `UPDATE compliance_records SET ai_analysis = $2 WHERE id = $1`, recordID, ai)
	return affectedOne(tag, err)
}

func (db *DB) SetWeatherOutcome(ctx context.Context, r *domain.ComplianceRecord) error {
	weather, err := marshalNullable(r.WeatherAnalysis)
	if err != nil {
		return err
	}
	tag, err := db.q.Exec(ctx, `
        UPDATE compliance_records
        SET status = $2, weather_analysis = $3, weather_justification = $4
        WHERE id = $1
    `, r.ID, string(r.Status), weather, r.WeatherJustification)
	return affectedOne(tag, err)
}

func affectedOne(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func (db *DB) ListRecords(ctx context.Context, f ports.RecordFilter) ([]domain.ComplianceRecord, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.SupplierID != nil {
		add("supplier_id = $%d", *f.SupplierID)
	}
	if f.Metric != "" {
		add("metric = $%d", f.Metric)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.From != nil {
		add("date_recorded >= $%d", *f.From)
	}
	if f.To != nil {
		add("date_recorded <= $%d", *f.To)
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

	rows, err := db.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
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

// WithSupplierLock runs fn in a transaction holding the supplier row lock.
// Nested calls reuse the outer transaction.
func (db *DB) WithSupplierLock(ctx context.Context, supplierID int64, fn func(ctx context.Context, tx ports.Store) error) (err error) {
	if db.tx != nil {
		if err := lockSupplier(ctx, db.tx, supplierID); err != nil {
			return err
		}
		return fn(ctx, db)
	}

	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()
	if err = lockSupplier(ctx, tx, supplierID); err != nil {
		return err
	}
	return fn(ctx, &DB{Pool: db.Pool, q: tx, tx: tx})
}

func lockSupplier(ctx context.Context, tx pgx.Tx, supplierID int64) error {
	var id int64
	err := tx.QueryRow(ctx, `SELECT id FROM suppliers WHERE id = $1 FOR UPDATE`, supplierID).Scan(&id)
	return mapErr(err)
}

func scanSupplier(row pgx.Row) (domain.Supplier, error) {
	var s domain.Supplier
	var terms []byte
	err := row.Scan(&s.ID, &s.Name, &s.Country, &terms, &s.ComplianceScore, &s.ScoreBaseline, &s.BaselineRecordID,
		&s.LastAudit, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return s, mapErr(err)
	}
	if err := json.Unmarshal(terms, &s.ContractTerms); err != nil {
		return s, fmt.Errorf("supplier %d contract_terms: %w", s.ID, err)
	}
	return s, nil
}

func scanRecord(row pgx.Row) (domain.ComplianceRecord, error) {
	var r domain.ComplianceRecord
	var status string
	var ai, weather []byte
	err := row.Scan(&r.ID, &r.SupplierID, &r.Metric, &r.DateRecorded, &r.Result, &r.ExpectedValue, &status,
		&ai, &weather, &r.WeatherJustification, &r.CreatedAt)
	if err != nil {
		return r, mapErr(err)
	}
	r.Status = domain.Status(status)
	if ai != nil {
		r.AIAnalysis = new(domain.Narrative)
		if err := json.Unmarshal(ai, r.AIAnalysis); err != nil {
			return r, fmt.Errorf("record %d ai_analysis: %w", r.ID, err)
		}
	}
	if weather != nil {
		r.WeatherAnalysis = new(domain.WeatherAnalysis)
		if err := json.Unmarshal(weather, r.WeatherAnalysis); err != nil {
			return r, fmt.Errorf("record %d weather_analysis: %w", r.ID, err)
		}
	}
	return r, nil
}

func paginate(query string, args []any, page ports.Page) (string, []any) {
	if page.Limit > 0 {
		args = append(args, page.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if page.Skip > 0 {
		args = append(args, page.Skip)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}
	return query, args
}

func marshalNullable[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func termsOrEmpty(t domain.Terms) domain.Terms {
	if t == nil {
		return domain.Terms{}
	}
	return t
}

// mapErr turns driver errors into the ports sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ports.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ports.ErrConflict, pgErr.Detail)
		case "23503":
			return fmt.Errorf("%w: %s", ports.ErrNotFound, pgErr.Detail)
		}
	}
	return err
}
