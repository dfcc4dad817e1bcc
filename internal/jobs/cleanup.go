package jobs

import (
	"context"
	"log/slog"
	"time"
)

// DefaultBucketIdle is how long an in-process rate limit bucket may stay
// unused before the cleanup job drops it.
const DefaultBucketIdle = 10 * time.Minute

// SessionCleaner expires idle discovery sessions.
type SessionCleaner interface {
	Cleanup() int
	Len() int
}

// BucketCleaner drops rate limit buckets unused for longer than idle.
type BucketCleaner interface {
	Cleanup(idle time.Duration) int
	Len() int
}

// SessionCleanup returns the session_cleanup job.
func SessionCleanup(sessions SessionCleaner, metrics *Metrics, logger *slog.Logger) Func {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context) error {
		if n := sessions.Cleanup(); n > 0 {
			logger.DebugContext(ctx, "expired idle discovery sessions", slog.Int("count", n))
		}
		metrics.SetSessionsActive(sessions.Len())
		return nil
	}
}

// RateLimitCleanup returns the ratelimit_cleanup job. A non-positive idle
// uses DefaultBucketIdle.
func RateLimitCleanup(buckets BucketCleaner, idle time.Duration, metrics *Metrics, logger *slog.Logger) Func {
	if idle <= 0 {
		idle = DefaultBucketIdle
	}
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context) error {
		if n := buckets.Cleanup(idle); n > 0 {
			logger.DebugContext(ctx, "dropped idle rate limit buckets",
				slog.Int("count", n),
				slog.Duration("older_than", idle))
		}
		metrics.SetBucketsActive(buckets.Len())
		return nil
	}
}
