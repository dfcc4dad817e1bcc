// Package chat sends messages between the two users of a match.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/matchfeed/internal/swipe"
)

// ErrMatchNotFound is returned when the match does not exist or the sender
// is not one of its users.
var ErrMatchNotFound = errors.New("match not found")

// Message is a stored chat message.
type Message struct {
	ID        string
	MatchID   string
	SenderID  string
	Content   string
	CreatedAt time.Time
}

// Request is one message send.
type Request struct {
	MatchID  string
	SenderID string
	Text     string
}

// Validate checks the ids of the request. Content is checked by the engine.
func (r Request) Validate() error {
	if strings.TrimSpace(r.SenderID) == "" {
		return &swipe.ValidationError{Field: "sender_id", Message: "sender id is required"}
	}
	if _, err := uuid.Parse(r.MatchID); err != nil {
		return &swipe.ValidationError{Field: "match_id", Message: "match id must be a UUID"}
	}
	return nil
}

// Store persists messages and resolves match membership.
type Store interface {
	// MatchUsers returns the two users of a match or ErrMatchNotFound.
	MatchUsers(ctx context.Context, matchID string) (userLow, userHigh string, err error)
	InsertMessage(ctx context.Context, msg Message) (Message, error)
}
