package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/matchfeed/internal/notify"
	"github.com/onnwee/matchfeed/internal/policy"
	"github.com/onnwee/matchfeed/internal/swipe"
	"github.com/onnwee/matchfeed/internal/tracing"
	"github.com/onnwee/matchfeed/internal/validate"
)

// previewLength caps the message preview in notifications, in runes.
const previewLength = 120

// EngineConfig holds the collaborators of an Engine.
type EngineConfig struct {
	Store    Store
	Policy   swipe.PolicyChecker
	Notifier swipe.Notifier // Optional
	Logger   *slog.Logger   // Defaults to slog.Default()
	Metrics  *Metrics       // Optional
}

// Engine sends chat messages.
type Engine struct {
	store    Store
	policy   swipe.PolicyChecker
	notifier swipe.Notifier
	logger   *slog.Logger
	metrics  *Metrics
}

// NewEngine creates an Engine. A nil policy allows every message.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Policy == nil {
		cfg.Policy = policy.AllowAll{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		store:    cfg.Store,
		policy:   cfg.Policy,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
}

// SendMessage stores a message from a match user and notifies the other
// user.
//
// The content is validated before any collaborator is called. The sender
// must belong to the match, then the message policy is consumed, then the
// message is stored. Notification failures are logged and never fail the
// send.
func (e *Engine) SendMessage(ctx context.Context, req Request) (msg Message, err error) {
	if err := req.Validate(); err != nil {
		e.metrics.observe(OutcomeInvalid)
		return Message{}, err
	}
	content, err := validate.MessageContent(req.Text)
	if err != nil {
		e.metrics.observe(OutcomeInvalid)
		return Message{}, &swipe.ValidationError{Field: "text", Message: contentMessage(err)}
	}

	ctx, endSpan := tracing.StartSpan(ctx, "send_message")
	defer func() { endSpan(err) }()
	tracing.SetAttributes(ctx,
		attribute.String("chat.match_id", req.MatchID),
		attribute.String("chat.sender_id", req.SenderID),
	)

	low, high, err := e.store.MatchUsers(ctx, req.MatchID)
	if err != nil {
		if errors.Is(err, ErrMatchNotFound) {
			e.metrics.observe(OutcomeNotFound)
			return Message{}, err
		}
		e.metrics.observe(OutcomeError)
		return Message{}, fmt.Errorf("failed to load match: %w", err)
	}
	var receiver string
	switch req.SenderID {
	case low:
		receiver = high
	case high:
		receiver = low
	default:
		e.metrics.observe(OutcomeNotFound)
		return Message{}, ErrMatchNotFound
	}

	decision, err := e.policy.CheckAndConsume(ctx, req.SenderID, policy.KindMessage)
	if err != nil {
		e.metrics.observe(OutcomeError)
		return Message{}, fmt.Errorf("failed to check policy: %w", err)
	}
	if !decision.Allow {
		reason := decision.Reason
		if reason == "" {
			reason = policy.DefaultDenialReason
		}
		e.logger.InfoContext(ctx, "message denied by policy",
			slog.String("sender_id", req.SenderID),
			slog.String("reason", reason))
		e.metrics.observe(OutcomeDenied)
		return Message{}, &swipe.PolicyDeniedError{Reason: reason}
	}

	msg, err = e.store.InsertMessage(ctx, Message{
		MatchID:  req.MatchID,
		SenderID: req.SenderID,
		Content:  content,
	})
	if err != nil {
		e.metrics.observe(OutcomeError)
		return Message{}, fmt.Errorf("failed to insert message: %w", err)
	}

	e.metrics.observe(OutcomeSent)
	e.notifyMessage(ctx, msg, receiver)
	return msg, nil
}

func (e *Engine) notifyMessage(ctx context.Context, msg Message, receiverID string) {
	if e.notifier == nil {
		return
	}

	err := e.notifier.Dispatch(ctx, notify.Notification{
		Type:       notify.TypeMessage,
		MatchID:    msg.MatchID,
		ReceiverID: receiverID,
		ActorID:    msg.SenderID,
		Preview:    Preview(msg.Content),
	})
	if err != nil {
		e.logger.WarnContext(ctx, "failed to dispatch message notification",
			slog.String("match_id", msg.MatchID),
			slog.String("receiver_id", receiverID),
			slog.String("error", err.Error()))
	}
}

// Preview shortens content for a notification body.
func Preview(content string) string {
	if utf8.RuneCountInString(content) <= previewLength {
		return content
	}
	runes := []rune(content)
	return string(runes[:previewLength-1]) + "…"
}

func contentMessage(err error) string {
	switch {
	case errors.Is(err, validate.ErrEmpty):
		return "message must not be empty"
	case errors.Is(err, validate.ErrStringTooLong):
		return fmt.Sprintf("message must be at most %d characters", validate.MaxMessageLength)
	case errors.Is(err, validate.ErrDisallowedWord):
		return "message contains inappropriate language"
	case errors.Is(err, validate.ErrContactInfo):
		return "message must not contain an email address or phone number"
	default:
		return err.Error()
	}
}
