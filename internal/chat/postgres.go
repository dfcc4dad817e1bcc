package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/onnwee/matchfeed/internal/tracing"
)

// PostgresStore implements Store on the matches and messages tables.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{
		db:     db,
		logger: logger,
	}
}

// MatchUsers returns the canonical pair of the match.
func (s *PostgresStore) MatchUsers(ctx context.Context, matchID string) (userLow, userHigh string, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "matches", tracing.DBOperationQuery)
	defer func() {
		if errors.Is(err, ErrMatchNotFound) {
			endSpan(nil)
			return
		}
		endSpan(err)
	}()

	err = s.db.QueryRowContext(ctx, `
		SELECT user_low, user_high FROM matches WHERE id = $1
	`, matchID).Scan(&userLow, &userHigh)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", ErrMatchNotFound
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to query match: %w", err)
	}
	return userLow, userHigh, nil
}

// InsertMessage stores msg and returns it with its id and timestamp.
func (s *PostgresStore) InsertMessage(ctx context.Context, msg Message) (_ Message, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "messages", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO messages (match_id, sender, content, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, created_at
	`, msg.MatchID, msg.SenderID, msg.Content).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("failed to insert message: %w", err)
	}

	s.logger.DebugContext(ctx, "message stored",
		slog.String("match_id", msg.MatchID),
		slog.String("sender_id", msg.SenderID))
	return msg, nil
}
