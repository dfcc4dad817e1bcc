package ratelimit

import (
	"context"
	"time"
)

// Limiter is the per-session action limiter. Each bucket key keeps its own
// state; keys without a configuration use the generic bucket.
type Limiter struct {
	configs map[string]BucketConfig
	store   *MemoryStore
}

// NewLimiter creates a limiter for the given bucket table. A nil table uses
// DefaultBuckets; a table without a generic entry gets the default one.
func NewLimiter(configs map[string]BucketConfig, clock func() time.Time) *Limiter {
	defaults := DefaultBuckets()
	merged := make(map[string]BucketConfig, len(configs)+1)
	if configs == nil {
		configs = defaults
	}
	for key, cfg := range configs {
		merged[key] = cfg
	}
	if _, ok := merged[BucketGeneric]; !ok {
		merged[BucketGeneric] = defaults[BucketGeneric]
	}

	return &Limiter{
		configs: merged,
		store:   NewMemoryStore(clock),
	}
}

// Config returns the configuration applied to bucketKey.
func (l *Limiter) Config(bucketKey string) BucketConfig {
	if cfg, ok := l.configs[bucketKey]; ok {
		return cfg
	}
	return l.configs[BucketGeneric]
}

// Consume takes one token from bucketKey. It returns a *RateLimitedError
// when fewer than one token is available.
func (l *Limiter) Consume(bucketKey string) error {
	decision, err := l.store.Take(context.Background(), bucketKey, l.Config(bucketKey))
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return &RateLimitedError{Bucket: bucketKey, RetryAfter: decision.RetryAfter}
	}
	return nil
}

// Reset refills every bucket.
func (l *Limiter) Reset() {
	l.store.Reset()
}
