package swipe

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type pairKey struct {
	a, b string
}

// InMemoryStore implements LikeStore, MatchLookup and BlockStore in memory.
// Inserting a like whose reverse already exists creates the match under
// the same lock, mirroring the transactional behavior of PostgresStore.
type InMemoryStore struct {
	mu      sync.RWMutex
	likes   map[pairKey]Like
	matches map[pairKey]Match
	blocks  map[pairKey]time.Time
	now     func() time.Time
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		likes:   make(map[pairKey]Like),
		matches: make(map[pairKey]Match),
		blocks:  make(map[pairKey]time.Time),
		now:     time.Now,
	}
}

// InsertLike stores a like and materializes the match on a mutual like.
func (s *InMemoryStore) InsertLike(ctx context.Context, like Like) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{like.Liker, like.Liked}
	if _, exists := s.likes[key]; exists {
		return ErrDuplicateLike
	}

	if like.CreatedAt.IsZero() {
		like.CreatedAt = s.now()
	}
	s.likes[key] = like

	if _, reverse := s.likes[pairKey{like.Liked, like.Liker}]; !reverse {
		return nil
	}

	low, high := CanonicalPair(like.Liker, like.Liked)
	canonical := pairKey{low, high}
	if _, exists := s.matches[canonical]; !exists {
		s.matches[canonical] = Match{
			ID:        uuid.New().String(),
			UserLow:   low,
			UserHigh:  high,
			CreatedAt: like.CreatedAt,
		}
	}
	return nil
}

// LookupMatch returns the match id for the canonical pair, or "" if none.
func (s *InMemoryStore) LookupMatch(ctx context.Context, userLow, userHigh string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	match, ok := s.matches[pairKey{userLow, userHigh}]
	if !ok {
		return "", nil
	}
	return match.ID, nil
}

// InsertBlock stores a block.
func (s *InMemoryStore) InsertBlock(ctx context.Context, blockerID, blockedID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{blockerID, blockedID}
	if _, exists := s.blocks[key]; exists {
		return ErrDuplicateBlock
	}
	s.blocks[key] = s.now()
	return nil
}

// HasLike reports whether liker liked liked.
func (s *InMemoryStore) HasLike(liker, liked string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.likes[pairKey{liker, liked}]
	return ok
}

// IsBlocked reports whether blocker blocked blocked.
func (s *InMemoryStore) IsBlocked(blocker, blocked string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blocks[pairKey{blocker, blocked}]
	return ok
}

// MatchCount returns the number of stored matches.
func (s *InMemoryStore) MatchCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matches)
}
