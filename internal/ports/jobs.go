package ports

import "context"

// WeatherJob asks for a weather check of one record.
type WeatherJob struct {
	ID       int64
	RecordID int64
}

// JobRepository supports enqueuing and claiming weather-check jobs.
type JobRepository interface {
	EnqueueWeatherCheck(ctx context.Context, recordID int64) (jobID int64, err error)
	ClaimNext(ctx context.Context) (job WeatherJob, found bool, err error)
	MarkCompleted(ctx context.Context, jobID int64) error
	MarkFailed(ctx context.Context, jobID int64, reason string) error
}
