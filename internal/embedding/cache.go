package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/onnwee/matchfeed/internal/matching"
)

// DefaultCacheTTL is how long a viewer embedding stays cached.
const DefaultCacheTTL = 10 * time.Minute

const cachePrefix = "embedding:"

// Cache is the subset of the Redis client used by CachedStore.
type Cache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// CachedStore is a read-through Redis cache in front of an EmbeddingStore.
// Cache failures are logged and bypassed. Missing embeddings are not cached.
type CachedStore struct {
	next   matching.EmbeddingStore
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedStore wraps next with a Redis cache.
func NewCachedStore(next matching.EmbeddingStore, cache Cache, ttl time.Duration, logger *slog.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedStore{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// GetViewerEmbedding returns the cached vector or loads and caches it.
func (c *CachedStore) GetViewerEmbedding(ctx context.Context, viewerID string) ([]float64, error) {
	key := cachePrefix + viewerID

	raw, err := c.cache.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var vector []float64
		if jsonErr := json.Unmarshal(raw, &vector); jsonErr == nil && len(vector) > 0 {
			return vector, nil
		}
		c.logger.WarnContext(ctx, "discarding malformed cached embedding",
			slog.String("viewer_id", viewerID))
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "embedding cache read failed",
			slog.String("viewer_id", viewerID),
			slog.String("error", err.Error()))
	}

	vector, err := c.next.GetViewerEmbedding(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(vector)
	if err == nil {
		err = c.cache.Set(ctx, key, encoded, c.ttl).Err()
	}
	if err != nil {
		c.logger.WarnContext(ctx, "embedding cache write failed",
			slog.String("viewer_id", viewerID),
			slog.String("error", err.Error()))
	}
	return vector, nil
}
