package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type matchUsers struct {
	low, high string
}

// InMemoryStore implements Store in memory.
type InMemoryStore struct {
	mu       sync.RWMutex
	matches  map[string]matchUsers
	messages []Message
	now      func() time.Time
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		matches: make(map[string]matchUsers),
		now:     time.Now,
	}
}

// PutMatch stores a match between userLow and userHigh.
func (s *InMemoryStore) PutMatch(matchID, userLow, userHigh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches[matchID] = matchUsers{low: userLow, high: userHigh}
}

// MatchUsers returns the users of matchID or ErrMatchNotFound.
func (s *InMemoryStore) MatchUsers(ctx context.Context, matchID string) (string, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.matches[matchID]
	if !ok {
		return "", "", ErrMatchNotFound
	}
	return m.low, m.high, nil
}

// InsertMessage stores msg with a new id.
func (s *InMemoryStore) InsertMessage(ctx context.Context, msg Message) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg.ID = uuid.NewString()
	msg.CreatedAt = s.now()
	s.messages = append(s.messages, msg)
	return msg, nil
}

// Messages returns the messages of matchID in send order.
func (s *InMemoryStore) Messages(matchID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Message
	for _, m := range s.messages {
		if m.MatchID == matchID {
			out = append(out, m)
		}
	}
	return out
}
