package policy

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/onnwee/matchfeed/internal/tracing"
)

// ReasonMissingParameters is returned when the actor is unknown.
const ReasonMissingParameters = "missing_parameters"

// ReasonRateLimited is returned when a limit is reached.
const ReasonRateLimited = "rate_limited"

// WindowLimit caps the rows an actor may create in a table per window.
type WindowLimit struct {
	Table  string        // Table holding one row per action
	Column string        // Column identifying the actor
	Max    int           // Rows allowed per window
	Window time.Duration // Sliding window length
}

// DefaultWindowLimits returns the limits for likes and messages.
func DefaultWindowLimits() map[ActionKind]WindowLimit {
	return map[ActionKind]WindowLimit{
		KindLike: {
			Table:  "likes",
			Column: "liker",
			Max:    120,
			Window: 5 * time.Minute,
		},
		KindMessage: {
			Table:  "messages",
			Column: "sender",
			Max:    160,
			Window: 5 * time.Minute,
		},
	}
}

// WindowChecker counts an actor's recent rows in Postgres.
// The row written by the action itself is the consumption, so the check is read-only.
type WindowChecker struct {
	db      *sql.DB
	limits  map[ActionKind]WindowLimit
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

// NewWindowChecker creates a checker. A nil limits map uses DefaultWindowLimits.
func NewWindowChecker(db *sql.DB, limits map[ActionKind]WindowLimit, logger *slog.Logger, metrics *Metrics) *WindowChecker {
	if limits == nil {
		limits = DefaultWindowLimits()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WindowChecker{
		db:      db,
		limits:  limits,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// CheckAndConsume denies when the actor reached the limit for kind within the window.
// Kinds without a limit are allowed. Query failures allow the action.
func (c *WindowChecker) CheckAndConsume(ctx context.Context, actorID string, kind ActionKind) (Decision, error) {
	if actorID == "" || kind == "" {
		c.metrics.observe(kind, OutcomeDenied)
		return Denied(ReasonMissingParameters), nil
	}

	limit, ok := c.limits[kind]
	if !ok {
		c.metrics.observe(kind, OutcomeAllowed)
		return Allowed(), nil
	}

	count, err := c.countSince(ctx, limit, actorID, c.now().Add(-limit.Window))
	if err != nil {
		c.logger.WarnContext(ctx, "policy check failed, allowing action",
			slog.String("actor_id", actorID),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()))
		c.metrics.observe(kind, OutcomeFailOpen)
		return Allowed(), nil
	}

	if count >= limit.Max {
		c.logger.InfoContext(ctx, "policy denied action",
			slog.String("actor_id", actorID),
			slog.String("kind", string(kind)),
			slog.Int("count", count),
			slog.Int("max", limit.Max))
		c.metrics.observe(kind, OutcomeDenied)
		return Denied(ReasonRateLimited), nil
	}

	c.metrics.observe(kind, OutcomeAllowed)
	return Allowed(), nil
}

func (c *WindowChecker) countSince(ctx context.Context, limit WindowLimit, actorID string, since time.Time) (count int, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, limit.Table, tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = $1 AND created_at >= $2`,
		pq.QuoteIdentifier(limit.Table), pq.QuoteIdentifier(limit.Column))

	if err = c.db.QueryRowContext(ctx, query, actorID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", limit.Table, err)
	}
	return count, nil
}
