package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type memoryBucket struct {
	limiter  *rate.Limiter
	cfg      BucketConfig
	lastUsed time.Time
}

// MemoryStore keeps token buckets in process memory.
// Thread-safe via mutex.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*memoryBucket
	now     func() time.Time
}

// NewMemoryStore creates an empty store. A nil clock defaults to time.Now.
func NewMemoryStore(clock func() time.Time) *MemoryStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore{
		buckets: make(map[string]*memoryBucket),
		now:     clock,
	}
}

// Take removes one token from the bucket for key, creating a full bucket on
// first use. A changed configuration for an existing key starts a new bucket.
func (s *MemoryStore) Take(ctx context.Context, key string, cfg BucketConfig) (Decision, error) {
	if err := cfg.Validate(); err != nil {
		return Decision{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	b, ok := s.buckets[key]
	if !ok || b.cfg != cfg {
		b = &memoryBucket{
			limiter: rate.NewLimiter(rate.Limit(cfg.TokensPerSecond()), cfg.Capacity),
			cfg:     cfg,
		}
		s.buckets[key] = b
	}
	b.lastUsed = now

	if b.limiter.AllowN(now, 1) {
		return Decision{Allowed: true, Remaining: b.limiter.TokensAt(now)}, nil
	}

	tokens := b.limiter.TokensAt(now)
	return Decision{
		Allowed:    false,
		Remaining:  tokens,
		RetryAfter: cfg.retryAfter(tokens),
	}, nil
}

// Reset drops all buckets.
func (s *MemoryStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets = make(map[string]*memoryBucket)
}

// Cleanup drops buckets unused for longer than idle.
// An idle bucket has refilled completely, so dropping it is lossless once
// idle is at least its refill interval.
func (s *MemoryStore) Cleanup(idle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, b := range s.buckets {
		if now.Sub(b.lastUsed) > idle && now.Sub(b.lastUsed) >= b.cfg.RefillInterval {
			delete(s.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of live buckets.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}
