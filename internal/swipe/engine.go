package swipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/matchfeed/internal/notify"
	"github.com/onnwee/matchfeed/internal/policy"
	"github.com/onnwee/matchfeed/internal/tracing"
)

// PolicyChecker checks and records one action by an actor.
type PolicyChecker interface {
	CheckAndConsume(ctx context.Context, actorID string, kind policy.ActionKind) (policy.Decision, error)
}

// LikeStore persists likes. InsertLike returns ErrDuplicateLike when the
// (liker, liked) pair already exists.
type LikeStore interface {
	InsertLike(ctx context.Context, like Like) error
}

// MatchLookup reads a match by its canonical pair.
// It returns an empty id and no error when no match exists.
type MatchLookup interface {
	LookupMatch(ctx context.Context, userLow, userHigh string) (string, error)
}

// Notifier dispatches a notification.
type Notifier interface {
	Dispatch(ctx context.Context, notification notify.Notification) error
}

// EngineConfig holds the collaborators of an Engine.
type EngineConfig struct {
	Policy   PolicyChecker
	Likes    LikeStore
	Matches  MatchLookup
	Notifier Notifier     // Optional
	Logger   *slog.Logger // Defaults to slog.Default()
	Metrics  *Metrics     // Optional
}

// Engine applies swipe actions.
type Engine struct {
	policy   PolicyChecker
	likes    LikeStore
	matches  MatchLookup
	notifier Notifier
	logger   *slog.Logger
	metrics  *Metrics
}

// NewEngine creates an Engine. A nil policy allows every action.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Policy == nil {
		cfg.Policy = policy.AllowAll{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		policy:   cfg.Policy,
		likes:    cfg.Likes,
		matches:  cfg.Matches,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
}

// SendSwipeAction records one swipe and reports whether it resolved a match.
//
// A pass is validated and returns immediately. A like or superlike is
// checked against the policy, stored idempotently, and followed by a match
// lookup on the canonical pair. When a match exists the target is notified;
// notification failures are logged and never fail the swipe.
//
// Returned errors match ErrValidation or ErrPolicyDenied for caller
// mistakes and policy rejections. Any other error is a storage failure.
func (e *Engine) SendSwipeAction(ctx context.Context, req Request) (result Result, err error) {
	if err := req.Validate(); err != nil {
		e.metrics.observe(req.Action, OutcomeInvalid)
		return Result{}, err
	}

	if req.Action == ActionPass {
		e.metrics.observe(req.Action, OutcomeRecorded)
		return Result{}, nil
	}

	ctx, endSpan := tracing.StartSpan(ctx, "send_swipe_action")
	defer func() { endSpan(err) }()
	tracing.SetAttributes(ctx,
		attribute.String("swipe.action", string(req.Action)),
		attribute.String("swipe.viewer_id", req.ViewerID),
	)

	decision, err := e.policy.CheckAndConsume(ctx, req.ViewerID, policy.KindLike)
	if err != nil {
		e.metrics.observe(req.Action, OutcomeError)
		return Result{}, fmt.Errorf("failed to check policy: %w", err)
	}
	if !decision.Allow {
		reason := decision.Reason
		if reason == "" {
			reason = policy.DefaultDenialReason
		}
		e.logger.InfoContext(ctx, "swipe denied by policy",
			slog.String("viewer_id", req.ViewerID),
			slog.String("reason", reason))
		e.metrics.observe(req.Action, OutcomeDenied)
		return Result{}, &PolicyDeniedError{Reason: reason}
	}

	like := Like{
		Liker:       req.ViewerID,
		Liked:       req.TargetID,
		IsSuperlike: req.Action == ActionSuperlike,
	}
	if err := e.likes.InsertLike(ctx, like); err != nil {
		if !errors.Is(err, ErrDuplicateLike) {
			e.metrics.observe(req.Action, OutcomeError)
			return Result{}, fmt.Errorf("failed to insert like: %w", err)
		}
		e.logger.DebugContext(ctx, "like already recorded",
			slog.String("viewer_id", req.ViewerID),
			slog.String("target_id", req.TargetID))
	}

	low, high := CanonicalPair(req.ViewerID, req.TargetID)
	matchID, err := e.matches.LookupMatch(ctx, low, high)
	if err != nil {
		e.metrics.observe(req.Action, OutcomeError)
		return Result{}, fmt.Errorf("failed to look up match: %w", err)
	}

	if matchID == "" {
		e.metrics.observe(req.Action, OutcomeRecorded)
		return Result{}, nil
	}

	e.metrics.observe(req.Action, OutcomeMatched)
	e.notifyMatch(ctx, matchID, req)
	return Result{MatchID: matchID}, nil
}

func (e *Engine) notifyMatch(ctx context.Context, matchID string, req Request) {
	if e.notifier == nil {
		return
	}

	err := e.notifier.Dispatch(ctx, notify.Notification{
		Type:       notify.TypeMatch,
		MatchID:    matchID,
		ReceiverID: req.TargetID,
		ActorID:    req.ViewerID,
	})
	if err != nil {
		e.logger.WarnContext(ctx, "failed to dispatch match notification",
			slog.String("match_id", matchID),
			slog.String("receiver_id", req.TargetID),
			slog.String("error", err.Error()))
		e.metrics.incNotifyFailure()
	}
}
