// Package embedding reads profile embedding vectors and nearest-neighbor
// similarities for vector ranking.
package embedding

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/onnwee/matchfeed/internal/matching"
	"github.com/onnwee/matchfeed/internal/tracing"
)

// PostgresStore reads embeddings from profile_embeddings and similarities
// from the match_candidates_by_vector SQL function.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetViewerEmbedding returns the vector of viewerID or matching.ErrNoEmbedding.
func (s *PostgresStore) GetViewerEmbedding(ctx context.Context, viewerID string) (vector []float64, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "profile_embeddings", tracing.DBOperationQuery)
	defer func() {
		if errors.Is(err, matching.ErrNoEmbedding) {
			endSpan(nil)
			return
		}
		endSpan(err)
	}()

	var raw pq.Float64Array
	err = s.db.QueryRowContext(ctx, `
		SELECT vector FROM profile_embeddings WHERE profile_id = $1
	`, viewerID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, matching.ErrNoEmbedding
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query embedding: %w", err)
	}
	if len(raw) == 0 {
		return nil, matching.ErrNoEmbedding
	}
	return []float64(raw), nil
}

// SearchSimilarCandidates returns up to limit candidates ordered by similarity.
func (s *PostgresStore) SearchSimilarCandidates(ctx context.Context, viewerID string, limit int) (results []matching.Similarity, err error) {
	if limit <= 0 {
		return nil, nil
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "match_candidates_by_vector", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := s.db.QueryContext(ctx, `
		SELECT candidate_id, similarity FROM match_candidates_by_vector($1, $2)
	`, viewerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search similar candidates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r matching.Similarity
		if err := rows.Scan(&r.CandidateID, &r.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan similarity: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate similarities: %w", err)
	}
	return results, nil
}
