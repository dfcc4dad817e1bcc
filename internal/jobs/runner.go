package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Func is one run of a background job.
type Func func(ctx context.Context) error

// Runner runs jobs on a fixed interval and records each run.
type Runner struct {
	metrics *Metrics
	logger  *slog.Logger
}

// NewRunner creates a Runner. metrics may be nil.
func NewRunner(metrics *Metrics, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{metrics: metrics, logger: logger}
}

// Every calls fn each interval until ctx is done. A failed run is logged
// and counted; the next run still happens on schedule.
func (r *Runner) Every(ctx context.Context, jobType string, interval time.Duration, fn Func) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx, jobType, fn)
		}
	}
}

// RunOnce runs fn once and records its outcome.
func (r *Runner) RunOnce(ctx context.Context, jobType string, fn Func) error {
	start := time.Now()
	err := fn(ctx)
	r.metrics.ObserveJobDuration(jobType, time.Since(start).Seconds())

	if err != nil {
		r.metrics.IncJobsTotal(jobType, StatusFailure)
		r.metrics.IncJobErrors(jobType, errorType(err))
		r.logger.WarnContext(ctx, "background job failed",
			slog.String("job_type", jobType),
			slog.String("error", err.Error()))
		return err
	}
	r.metrics.IncJobsTotal(jobType, StatusSuccess)
	return nil
}

func errorType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
