package swipe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestCanonicalPair(t *testing.T) {
	tests := []struct {
		a, b      string
		low, high string
	}{
		{"a", "b", "a", "b"},
		{"b", "a", "a", "b"},
		{"same", "same", "same", "same"},
		{"B", "a", "B", "a"},
	}
	for _, tt := range tests {
		low, high := CanonicalPair(tt.a, tt.b)
		if low != tt.low || high != tt.high {
			t.Errorf("CanonicalPair(%q, %q) = (%q, %q), expected (%q, %q)", tt.a, tt.b, low, high, tt.low, tt.high)
		}
	}
}

func TestInMemoryStore_DuplicateLike(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	if err := store.InsertLike(ctx, Like{Liker: "a", Liked: "b"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.InsertLike(ctx, Like{Liker: "a", Liked: "b", IsSuperlike: true}); !errors.Is(err, ErrDuplicateLike) {
		t.Errorf("expected ErrDuplicateLike, got %v", err)
	}
	if !store.HasLike("a", "b") || store.HasLike("b", "a") {
		t.Error("unexpected like state")
	}
}

func TestInMemoryStore_MutualLikeCreatesOneMatch(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	if err := store.InsertLike(ctx, Like{Liker: "b", Liked: "a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id, _ := store.LookupMatch(ctx, "a", "b"); id != "" {
		t.Fatalf("expected no match yet, got %q", id)
	}

	if err := store.InsertLike(ctx, Like{Liker: "a", Liked: "b"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id, err := store.LookupMatch(ctx, "a", "b")
	if err != nil || id == "" {
		t.Fatalf("expected match, got %q, %v", id, err)
	}
	if other, _ := store.LookupMatch(ctx, "b", "a"); other != "" {
		t.Error("match must only be stored under the canonical pair")
	}
}

func TestInMemoryStore_ConcurrentMutualLikes(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		a, b := fmt.Sprintf("u%02d", i), fmt.Sprintf("v%02d", i)
		wg.Add(2)
		go func() { defer wg.Done(); _ = store.InsertLike(ctx, Like{Liker: a, Liked: b}) }()
		go func() { defer wg.Done(); _ = store.InsertLike(ctx, Like{Liker: b, Liked: a}) }()
	}
	wg.Wait()

	if store.MatchCount() != 20 {
		t.Errorf("expected 20 matches, got %d", store.MatchCount())
	}
}

func TestInMemoryStore_Blocks(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	if err := store.InsertBlock(ctx, "a", "b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.InsertBlock(ctx, "a", "b"); !errors.Is(err, ErrDuplicateBlock) {
		t.Errorf("expected ErrDuplicateBlock, got %v", err)
	}
	if !store.IsBlocked("a", "b") || store.IsBlocked("b", "a") {
		t.Error("unexpected block state")
	}
}
