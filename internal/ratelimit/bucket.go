// Package ratelimit implements continuous token buckets for write-heavy
// discovery actions such as likes and messages.
//
// Each bucket key has its own capacity and refill interval. A bucket starts
// full and refills continuously at Capacity tokens per RefillInterval, so
// refill is computed on demand and needs no background timer.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Well-known bucket keys.
const (
	BucketGeneric = "generic"
	BucketLike    = "like"
	BucketMessage = "message"
)

// ErrRateLimited is matched by every rejection returned from this package.
var ErrRateLimited = errors.New("rate limited")

// RateLimitedError reports a rejected action.
type RateLimitedError struct {
	Bucket     string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited on bucket %q, retry after %s", e.Bucket, e.RetryAfter.Round(time.Millisecond))
}

// Is reports whether target is ErrRateLimited.
func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// BucketConfig describes one token bucket.
type BucketConfig struct {
	Capacity       int           `koanf:"capacity" json:"capacity"`               // Maximum and initial token count
	RefillInterval time.Duration `koanf:"refill_interval" json:"refill_interval"` // Time to refill from empty to Capacity
}

// Validate checks that the bucket can ever grant a token.
func (c BucketConfig) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("capacity must be at least 1, got %d", c.Capacity)
	}
	if c.RefillInterval <= 0 {
		return fmt.Errorf("refill interval must be positive, got %s", c.RefillInterval)
	}
	return nil
}

// TokensPerSecond returns the continuous refill rate.
func (c BucketConfig) TokensPerSecond() float64 {
	return float64(c.Capacity) / c.RefillInterval.Seconds()
}

// retryAfter returns how long until one token is available.
func (c BucketConfig) retryAfter(tokens float64) time.Duration {
	missing := 1 - tokens
	if missing <= 0 {
		return 0
	}
	seconds := missing / c.TokensPerSecond()
	return time.Duration(math.Ceil(seconds * float64(time.Second)))
}

// DefaultBuckets returns the default per-session bucket table.
func DefaultBuckets() map[string]BucketConfig {
	return map[string]BucketConfig{
		BucketGeneric: {Capacity: 60, RefillInterval: time.Minute},
		BucketLike:    {Capacity: 40, RefillInterval: time.Minute},
		BucketMessage: {Capacity: 45, RefillInterval: time.Minute},
	}
}

// Decision is the outcome of taking one token.
type Decision struct {
	Allowed    bool
	Remaining  float64       // Tokens left after the decision
	RetryAfter time.Duration // Zero when allowed
}

// Store takes tokens from named buckets.
// Implementations must apply the refill and the take atomically per key.
type Store interface {
	Take(ctx context.Context, key string, cfg BucketConfig) (Decision, error)
}
