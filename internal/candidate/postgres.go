package candidate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/onnwee/matchfeed/internal/matching"
	"github.com/onnwee/matchfeed/internal/tracing"
)

// scanFactor over-fetches rows so nearby filtering still fills MaxResults.
const scanFactor = 4

const profileColumns = `
	id, display_name, bio, birthdate, gender, orientation, interests, photos,
	latitude, longitude, country, radius_km, last_active_at, feedback_score, is_hidden
`

// PostgresSource implements Source over the profiles table.
type PostgresSource struct {
	db     *sql.DB
	cfg    Config
	logger *slog.Logger
}

// NewPostgresSource creates a PostgresSource.
func NewPostgresSource(db *sql.DB, cfg Config, logger *slog.Logger) *PostgresSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresSource{
		db:     db,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (Profile, error) {
	var (
		p          Profile
		interests  pq.StringArray
		photos     pq.StringArray
		lat, lng   sql.NullFloat64
		lastActive sql.NullTime
		feedback   sql.NullFloat64
	)
	err := row.Scan(
		&p.ID, &p.DisplayName, &p.Bio, &p.Birthdate, &p.Gender, &p.Orientation,
		&interests, &photos, &lat, &lng, &p.Country, &p.RadiusKm,
		&lastActive, &feedback, &p.Hidden,
	)
	if err != nil {
		return Profile{}, err
	}

	p.Interests = []string(interests)
	p.Photos = []string(photos)
	if lat.Valid {
		p.Latitude = &lat.Float64
	}
	if lng.Valid {
		p.Longitude = &lng.Float64
	}
	if lastActive.Valid {
		t := lastActive.Time
		p.LastActiveAt = &t
	}
	if feedback.Valid {
		p.FeedbackScore = &feedback.Float64
	}
	return p, nil
}

// GetViewer loads the viewer profile.
func (s *PostgresSource) GetViewer(ctx context.Context, viewerID string) (viewer Viewer, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "profiles", tracing.DBOperationQuery)
	defer func() {
		if errors.Is(err, ErrViewerNotFound) {
			endSpan(nil)
			return
		}
		endSpan(err)
	}()

	p, err := scanProfile(s.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1`, viewerID))
	if errors.Is(err, sql.ErrNoRows) {
		return Viewer{}, ErrViewerNotFound
	}
	if err != nil {
		return Viewer{}, fmt.Errorf("failed to load viewer: %w", err)
	}
	return p.viewer(s.cfg.DefaultRadiusKm), nil
}

// GetCandidatesForViewer returns up to MaxResults candidates for viewerID,
// most recently active first. Blocked profiles in either direction, hidden
// profiles and excludeIDs never appear.
func (s *PostgresSource) GetCandidatesForViewer(ctx context.Context, viewerID string, mode RegionMode, excludeIDs []string) ([]matching.Candidate, error) {
	viewer, err := s.GetViewer(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	return s.GetCandidatesForProfile(ctx, viewer, mode, excludeIDs)
}

// GetCandidatesForProfile is GetCandidatesForViewer for an already loaded
// viewer.
func (s *PostgresSource) GetCandidatesForProfile(ctx context.Context, viewer Viewer, mode RegionMode, excludeIDs []string) (candidates []matching.Candidate, err error) {
	viewerID := viewer.ID
	country := ""
	if mode == RegionCountry {
		country = viewer.Country
	}
	if excludeIDs == nil {
		excludeIDs = []string{}
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "profiles", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+profileColumns+`
		FROM profiles p
		WHERE p.id <> $1
			AND NOT p.is_hidden
			AND NOT (p.id = ANY($2))
			AND ($3 = '' OR lower(p.country) = lower($3))
			AND NOT EXISTS (
				SELECT 1 FROM blocks b
				WHERE (b.blocker = $1 AND b.blocked = p.id)
					OR (b.blocker = p.id AND b.blocked = $1)
			)
		ORDER BY p.last_active_at DESC NULLS LAST, p.id
		LIMIT $4
	`, viewerID, pq.Array(excludeIDs), country, s.cfg.MaxResults*scanFactor)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	sel := newSelector(viewer, mode, excludeIDs, s.cfg.Clock(), s.cfg.MaxResults)
	candidates = make([]matching.Candidate, 0, s.cfg.MaxResults)
	scanned := 0
	for rows.Next() {
		p, scanErr := scanProfile(rows)
		if scanErr != nil {
			err = fmt.Errorf("failed to scan candidate: %w", scanErr)
			return nil, err
		}
		scanned++
		if len(candidates) >= sel.max {
			continue
		}
		if c, ok := sel.accept(p); ok {
			candidates = append(candidates, c)
		}
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("failed to iterate candidates: %w", err)
		return nil, err
	}

	s.logger.DebugContext(ctx, "candidates loaded",
		slog.String("viewer_id", viewerID),
		slog.String("region", string(mode)),
		slog.Int("scanned", scanned),
		slog.Int("returned", len(candidates)),
		slog.Duration("duration", time.Since(start)),
	)
	return candidates, nil
}
