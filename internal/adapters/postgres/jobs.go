package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/ports"
)

var _ ports.JobRepository = (*DB)(nil)

func (db *DB) EnqueueWeatherCheck(ctx context.Context, recordID int64) (int64, error) {
	var id int64
	err := db.q.QueryRow(ctx, `INSERT INTO weather_checks (record_id) VALUES ($1) RETURNING id`, recordID).Scan(&id)
	return id, mapErr(err)
}

// ClaimNext selects the next queued job using SKIP LOCKED and marks it running.
func (db *DB) ClaimNext(ctx context.Context) (job ports.WeatherJob, found bool, err error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return job, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			_ = tx.Commit(ctx)
		}
	}()

	err = tx.QueryRow(ctx, `
        SELECT id, record_id FROM weather_checks
        WHERE status = 'queued'
        ORDER BY queued_at
        FOR UPDATE SKIP LOCKED
        LIMIT 1
    `).Scan(&job.ID, &job.RecordID)
	if errors.Is(err, pgx.ErrNoRows) {
		err = nil
		return job, false, nil
	}
	if err != nil {
		return job, false, err
	}

	if _, err = tx.Exec(ctx, `
        UPDATE weather_checks SET status = 'running', started_at = now(), attempts = attempts + 1 WHERE id = $1
    `, job.ID); err != nil {
		return job, false, err
	}
	return job, true, nil
}

func (db *DB) MarkCompleted(ctx context.Context, jobID int64) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	tag, err := db.Pool.Exec(ctx, `UPDATE weather_checks SET status = 'completed', finished_at = now(), last_error = NULL WHERE id = $1`, jobID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func (db *DB) MarkFailed(ctx context.Context, jobID int64, reason string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	tag, err := db.Pool.Exec(ctx, `UPDATE weather_checks SET status = 'failed', finished_at = now(), last_error = $2 WHERE id = $1`, jobID, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}
