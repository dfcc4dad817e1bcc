package featureflag

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/onnwee/matchfeed/internal/tracing"
)

// Store lists all flag definitions.
type Store interface {
	ListFlags(ctx context.Context) ([]Flag, error)
}

// PostgresStore reads flags from the feature_flags table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// ListFlags returns every flag row.
func (s *PostgresStore) ListFlags(ctx context.Context) (flags []Flag, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "feature_flags", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := s.db.QueryContext(ctx, `
		SELECT key, enabled, rollout_pct, COALESCE(platform, '')
		FROM feature_flags
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query feature flags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f Flag
		if err := rows.Scan(&f.Key, &f.Enabled, &f.RolloutPct, &f.Platform); err != nil {
			return nil, fmt.Errorf("failed to scan feature flag: %w", err)
		}
		flags = append(flags, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate feature flags: %w", err)
	}
	return flags, nil
}

// StaticStore serves a fixed list of flags, typically from configuration.
type StaticStore []Flag

// ListFlags returns the configured flags.
func (s StaticStore) ListFlags(ctx context.Context) ([]Flag, error) {
	out := make([]Flag, len(s))
	copy(out, s)
	return out, nil
}
