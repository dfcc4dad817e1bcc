package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/onnwee/matchfeed/internal/matching"
)

type mapCache struct {
	values  map[string][]byte
	getErr  error
	setErr  error
	lastTTL time.Duration
}

func newMapCache() *mapCache {
	return &mapCache{values: make(map[string][]byte)}
}

func (c *mapCache) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	if c.getErr != nil {
		cmd.SetErr(c.getErr)
		return cmd
	}
	v, ok := c.values[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(string(v))
	return cmd
}

func (c *mapCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	if c.setErr != nil {
		cmd.SetErr(c.setErr)
		return cmd
	}
	c.values[key] = value.([]byte)
	c.lastTTL = expiration
	cmd.SetVal("OK")
	return cmd
}

type stubEmbeddings struct {
	vector []float64
	err    error
	calls  int
}

func (s *stubEmbeddings) GetViewerEmbedding(ctx context.Context, viewerID string) ([]float64, error) {
	s.calls++
	return s.vector, s.err
}

func TestCachedStore_ReadThrough(t *testing.T) {
	next := &stubEmbeddings{vector: []float64{0.1, 0.2, 0.3}}
	cache := newMapCache()
	store := NewCachedStore(next, cache, time.Minute, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		v, err := store.GetViewerEmbedding(ctx, "viewer")
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if len(v) != 3 || v[2] != 0.3 {
			t.Fatalf("call %d: unexpected vector %v", i, v)
		}
	}

	if next.calls != 1 {
		t.Errorf("expected 1 backing call, got %d", next.calls)
	}
	if cache.lastTTL != time.Minute {
		t.Errorf("expected ttl 1m, got %s", cache.lastTTL)
	}
}

func TestCachedStore_MissingNotCached(t *testing.T) {
	next := &stubEmbeddings{err: matching.ErrNoEmbedding}
	cache := newMapCache()
	store := NewCachedStore(next, cache, 0, nil)

	for i := 0; i < 2; i++ {
		if _, err := store.GetViewerEmbedding(context.Background(), "viewer"); !errors.Is(err, matching.ErrNoEmbedding) {
			t.Fatalf("expected ErrNoEmbedding, got %v", err)
		}
	}
	if next.calls != 2 {
		t.Errorf("expected 2 backing calls, got %d", next.calls)
	}
	if len(cache.values) != 0 {
		t.Error("expected nothing cached")
	}
}

func TestCachedStore_CacheFailureBypassed(t *testing.T) {
	next := &stubEmbeddings{vector: []float64{1}}
	cache := newMapCache()
	cache.getErr = errors.New("connection refused")
	cache.setErr = errors.New("connection refused")
	store := NewCachedStore(next, cache, 0, nil)

	v, err := store.GetViewerEmbedding(context.Background(), "viewer")
	if err != nil || len(v) != 1 {
		t.Fatalf("expected backing value, got %v, %v", v, err)
	}
}

func TestCachedStore_MalformedEntryReloaded(t *testing.T) {
	next := &stubEmbeddings{vector: []float64{0.5}}
	cache := newMapCache()
	cache.values["embedding:viewer"] = []byte("not json")
	store := NewCachedStore(next, cache, 0, nil)

	v, err := store.GetViewerEmbedding(context.Background(), "viewer")
	if err != nil || len(v) != 1 || v[0] != 0.5 {
		t.Fatalf("expected reloaded value, got %v, %v", v, err)
	}
	if next.calls != 1 {
		t.Errorf("expected 1 backing call, got %d", next.calls)
	}
}
