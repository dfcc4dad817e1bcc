package policy

import (
	"context"
	"log/slog"

	"github.com/onnwee/matchfeed/internal/ratelimit"
)

// BucketChecker enforces one shared token bucket per actor and kind.
type BucketChecker struct {
	store   ratelimit.Store
	buckets map[ActionKind]ratelimit.BucketConfig
	logger  *slog.Logger
	metrics *Metrics
}

// DefaultBucketLimits mirrors DefaultWindowLimits as continuous buckets.
func DefaultBucketLimits() map[ActionKind]ratelimit.BucketConfig {
	limits := DefaultWindowLimits()
	buckets := make(map[ActionKind]ratelimit.BucketConfig, len(limits))
	for kind, l := range limits {
		buckets[kind] = ratelimit.BucketConfig{Capacity: l.Max, RefillInterval: l.Window}
	}
	return buckets
}

// NewBucketChecker creates a checker. A nil buckets map uses DefaultBucketLimits.
func NewBucketChecker(store ratelimit.Store, buckets map[ActionKind]ratelimit.BucketConfig, logger *slog.Logger, metrics *Metrics) *BucketChecker {
	if buckets == nil {
		buckets = DefaultBucketLimits()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BucketChecker{
		store:   store,
		buckets: buckets,
		logger:  logger,
		metrics: metrics,
	}
}

// CheckAndConsume takes one token from the actor's bucket for kind.
// Kinds without a bucket are allowed. Store failures allow the action.
func (c *BucketChecker) CheckAndConsume(ctx context.Context, actorID string, kind ActionKind) (Decision, error) {
	if actorID == "" || kind == "" {
		c.metrics.observe(kind, OutcomeDenied)
		return Denied(ReasonMissingParameters), nil
	}

	cfg, ok := c.buckets[kind]
	if !ok {
		c.metrics.observe(kind, OutcomeAllowed)
		return Allowed(), nil
	}

	decision, err := c.store.Take(ctx, "policy:"+string(kind)+":"+actorID, cfg)
	if err != nil {
		c.logger.WarnContext(ctx, "policy bucket unavailable, allowing action",
			slog.String("actor_id", actorID),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()))
		c.metrics.observe(kind, OutcomeFailOpen)
		return Allowed(), nil
	}

	if !decision.Allowed {
		c.metrics.observe(kind, OutcomeDenied)
		return Denied(ReasonRateLimited), nil
	}

	c.metrics.observe(kind, OutcomeAllowed)
	return Allowed(), nil
}
