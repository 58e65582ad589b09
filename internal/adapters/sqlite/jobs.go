package sqlite

import (
	"context"

	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/ports"
)

var _ ports.JobRepository = (*Store)(nil)

func (s *Store) EnqueueWeatherCheck(ctx context.Context, recordID int64) (int64, error) {
	res, err := s.q.ExecContext(ctx, `INSERT INTO weather_checks (record_id, queued_at) VALUES (?, ?)`, recordID, s.now())
	if isForeignKeyViolation(err) {
		return 0, ports.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ClaimNext moves the oldest queued job to running in a single statement.
func (s *Store) ClaimNext(ctx context.Context) (job ports.WeatherJob, found bool, err error) {
	err = s.q.QueryRowContext(ctx, `
        UPDATE weather_checks
        SET status = 'running', started_at = ?, attempts = attempts + 1
        WHERE id = (SELECT id FROM weather_checks WHERE status = 'queued' ORDER BY queued_at, id LIMIT 1)
        RETURNING id, record_id
    `, s.now()).Scan(&job.ID, &job.RecordID)
	if isNoRows(err) {
		return job, false, nil
	}
	if err != nil {
		return job, false, err
	}
	return job, true, nil
}

func (s *Store) MarkCompleted(ctx context.Context, jobID int64) error {
	res, err := s.q.ExecContext(ctx, `UPDATE weather_checks SET status = 'completed', finished_at = ?, last_error = NULL WHERE id = ?`, s.now(), jobID)
	return affectedOne(res, err)
}

func (s *Store) MarkFailed(ctx context.Context, jobID int64, reason string) error {
	res, err := s.q.ExecContext(ctx, `UPDATE weather_checks SET status = 'failed', finished_at = ?, last_error = ? WHERE id = ?`, s.now(), reason, jobID)
	return affectedOne(res, err)
}
