// Package notify dispatches user notifications for matches and messages.
//
// Delivery to devices happens elsewhere; this package only publishes the
// payload for the receiver. Dispatch is best-effort: callers log failures
// and carry on.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Notification types.
const (
	TypeMatch   = "match"
	TypeMessage = "message"
)

// ErrInvalidNotification is returned for payloads that cannot be delivered.
var ErrInvalidNotification = errors.New("invalid notification")

// Notification is the payload sent to a receiver.
type Notification struct {
	Type       string `json:"type"`
	MatchID    string `json:"matchId"`
	ReceiverID string `json:"receiverId"`
	ActorID    string `json:"actorId,omitempty"`
	Preview    string `json:"preview,omitempty"`
}

// Validate checks the fields required by every notification type.
func (n Notification) Validate() error {
	switch n.Type {
	case TypeMatch, TypeMessage:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidNotification, n.Type)
	}
	if n.MatchID == "" || n.ReceiverID == "" {
		return fmt.Errorf("%w: match id and receiver id are required", ErrInvalidNotification)
	}
	return nil
}

// Title returns the push title for the notification type.
func (n Notification) Title() string {
	if n.Type == TypeMessage {
		return "New message"
	}
	return "New match"
}

// Body returns the push body for the notification type.
func (n Notification) Body() string {
	if n.Type == TypeMessage {
		if n.Preview != "" {
			return n.Preview
		}
		return "You have a new message."
	}
	return "You have a new match!"
}

// LogNotifier writes notifications to a logger. Used when no broker is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger uses slog.Default().
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Dispatch logs the notification.
func (n *LogNotifier) Dispatch(ctx context.Context, notification Notification) error {
	if err := notification.Validate(); err != nil {
		return err
	}
	n.logger.InfoContext(ctx, "notification dispatched",
		slog.String("type", notification.Type),
		slog.String("match_id", notification.MatchID),
		slog.String("receiver_id", notification.ReceiverID),
		slog.String("actor_id", notification.ActorID))
	return nil
}
