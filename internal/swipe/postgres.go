package swipe

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/onnwee/matchfeed/internal/tracing"
)

// pgUniqueViolation is the SQLSTATE for unique constraint violations.
const pgUniqueViolation = "23505"

// PostgresStore implements LikeStore, MatchLookup and BlockStore on Postgres.
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

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
}

// InsertLike stores a like and, when the reverse like exists, the match for
// the canonical pair, in one transaction.
//
// The transaction holds an advisory lock on the canonical pair so that two
// users liking each other concurrently cannot both miss the other's like.
func (s *PostgresStore) InsertLike(ctx context.Context, like Like) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "likes", tracing.DBOperationInsert)
	defer func() {
		if errors.Is(err, ErrDuplicateLike) {
			endSpan(nil)
			return
		}
		endSpan(err)
	}()

	low, high := CanonicalPair(like.Liker, like.Liked)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelReadCommitted,
	})
	if err != nil {
		s.logger.Error("failed to begin transaction",
			slog.String("error", err.Error()),
			slog.String("liker", like.Liker),
			slog.String("liked", like.Liked))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// Always attempt rollback on function exit (no-op after successful commit)
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			s.logger.Warn("failed to rollback transaction",
				slog.String("error", err.Error()))
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1))`,
		low+"\x1f"+high,
	); err != nil {
		return fmt.Errorf("failed to lock pair: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO likes (liker, liked, is_superlike, created_at)
		VALUES ($1, $2, $3, NOW())
	`, like.Liker, like.Liked, like.IsSuperlike)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateLike
		}
		return fmt.Errorf("failed to insert like: %w", err)
	}

	var mutual bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM likes WHERE liker = $1 AND liked = $2)
	`, like.Liked, like.Liker).Scan(&mutual)
	if err != nil {
		return fmt.Errorf("failed to check reverse like: %w", err)
	}

	if mutual {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO matches (user_low, user_high, created_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (user_low, user_high) DO NOTHING
		`, low, high)
		if err != nil {
			return fmt.Errorf("failed to upsert match: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		s.logger.Error("failed to commit transaction",
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug("like recorded",
		slog.String("liker", like.Liker),
		slog.String("liked", like.Liked),
		slog.Bool("is_superlike", like.IsSuperlike),
		slog.Bool("mutual", mutual))
	return nil
}

// LookupMatch returns the id of the match for the canonical pair, or "" if none.
func (s *PostgresStore) LookupMatch(ctx context.Context, userLow, userHigh string) (id string, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "matches", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	err = s.db.QueryRowContext(ctx, `
		SELECT id FROM matches WHERE user_low = $1 AND user_high = $2
	`, userLow, userHigh).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query match: %w", err)
	}
	return id, nil
}

// InsertBlock stores a block.
func (s *PostgresStore) InsertBlock(ctx context.Context, blockerID, blockedID string) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "blocks", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO blocks (blocker, blocked, created_at)
		VALUES ($1, $2, NOW())
	`, blockerID, blockedID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateBlock
		}
		return fmt.Errorf("failed to insert block: %w", err)
	}
	return nil
}
