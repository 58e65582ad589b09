// Package weatherrunner drains the weather-check job queue in the background.
package weatherrunner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/compliance"
	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/ports"
)

// Processor runs the weather check for one record.
type Processor interface {
	ProcessRecord(ctx context.Context, recordID int64) error
}

// Run starts a dispatcher that claims jobs every pollInterval and concurrency
// workers that process them. The returned channel closes once every
// goroutine has stopped after ctx is cancelled.
func Run(ctx context.Context, repo ports.JobRepository, processor Processor, concurrency int, pollInterval time.Duration, logger *slog.Logger) <-chan struct{} {
	done := make(chan struct{})
	if concurrency < 1 {
		close(done)
		return done
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "weather-runner")
	jobsCh := make(chan ports.WeatherJob, concurrency)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(jobsCh)
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			for {
				job, found, err := repo.ClaimNext(ctx)
				if err != nil {
					if ctx.Err() == nil {
						logger.ErrorContext(ctx, "job claim failed", "err", err)
					}
					break
				}
				if !found {
					break
				}
				select {
				case jobsCh <- job:
				case <-ctx.Done():
					// claimed but never started; leave a trace on the row
					_ = repo.MarkFailed(context.WithoutCancel(ctx), job.ID, "shutdown before processing")
					return
				}
			}
		}
	}()

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			for job := range jobsCh {
				process(ctx, repo, processor, job, idx, logger)
			}
		}(i)
	}

	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

func process(ctx context.Context, repo ports.JobRepository, processor Processor, job ports.WeatherJob, worker int, logger *slog.Logger) {
	// bookkeeping must land even while shutting down
	bg := context.WithoutCancel(ctx)
	if err := processor.ProcessRecord(ctx, job.RecordID); err != nil {
		if merr := repo.MarkFailed(bg, job.ID, err.Error()); merr != nil {
			logger.ErrorContext(ctx, "mark failed", "job_id", job.ID, "err", merr)
		}
		logger.WarnContext(ctx, "weather job failed",
			"worker", worker, "job_id", job.ID, "record_id", job.RecordID, "kind", compliance.KindOf(err), "err", err)
		return
	}
	if err := repo.MarkCompleted(bg, job.ID); err != nil {
		logger.ErrorContext(ctx, "mark completed", "job_id", job.ID, "err", err)
		return
	}
	logger.DebugContext(ctx, "weather job completed", "worker", worker, "job_id", job.ID, "record_id", job.RecordID)
}
