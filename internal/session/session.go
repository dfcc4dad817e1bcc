// Package session holds the per-viewer state of a discovery session: the
// candidates already handled and the client-side action limiter.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/onnwee/matchfeed/internal/candidate"
	"github.com/onnwee/matchfeed/internal/chat"
	"github.com/onnwee/matchfeed/internal/exclusion"
	"github.com/onnwee/matchfeed/internal/matching"
	"github.com/onnwee/matchfeed/internal/ratelimit"
	"github.com/onnwee/matchfeed/internal/swipe"
)

// ErrMessagingDisabled is returned by SendMessage when no messenger is
// configured.
var ErrMessagingDisabled = errors.New("messaging is not configured")

// Swiper applies swipe actions.
type Swiper interface {
	SendSwipeAction(ctx context.Context, req swipe.Request) (swipe.Result, error)
}

// Messenger sends chat messages.
type Messenger interface {
	SendMessage(ctx context.Context, req chat.Request) (chat.Message, error)
}

// VectorRanker re-ranks a classic ordering.
type VectorRanker interface {
	RankCandidatesVector(ctx context.Context, viewer matching.ViewerProfile, candidates []matching.Candidate, fallback matching.FallbackFunc) []matching.Candidate
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Source    candidate.Source
	Swiper    Swiper
	Blocks    swipe.BlockStore
	Messenger Messenger                         // Nil rejects message sends
	Ranker    VectorRanker                      // Optional, classic ranking only when nil
	Buckets   map[string]ratelimit.BucketConfig // Nil uses ratelimit.DefaultBuckets
	Clock     func() time.Time
	Logger    *slog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return d
}

// Session is one viewer's discovery session. Methods are safe for
// concurrent use.
type Session struct {
	viewerID string
	deps     Deps
	excluded *exclusion.Set
	limiter  *ratelimit.Limiter
}

// New creates a session for viewerID with an empty exclusion set and full
// rate limit buckets.
func New(viewerID string, deps Deps) *Session {
	deps = deps.withDefaults()
	return &Session{
		viewerID: viewerID,
		deps:     deps,
		excluded: exclusion.New(),
		limiter:  ratelimit.NewLimiter(deps.Buckets, deps.Clock),
	}
}

// ViewerID returns the session owner.
func (s *Session) ViewerID() string {
	return s.viewerID
}

// Excluded returns the excluded candidate ids in sorted order.
func (s *Session) Excluded() []string {
	return s.excluded.IDs()
}

// Feed loads, filters and ranks the next candidates for the viewer.
func (s *Session) Feed(ctx context.Context, mode candidate.RegionMode) ([]matching.Candidate, error) {
	viewer, err := s.deps.Source.GetViewer(ctx, s.viewerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load viewer: %w", err)
	}

	candidates, err := s.deps.Source.GetCandidatesForProfile(ctx, viewer, mode, s.excluded.IDs())
	if err != nil {
		return nil, fmt.Errorf("failed to load candidates: %w", err)
	}

	// Swipes may land between the fetch and now.
	candidates = exclusion.Filter(s.excluded, candidates, func(c matching.Candidate) string { return c.ID })

	ranked := matching.RankCandidatesClassic(candidates, viewer.ViewerProfile, s.deps.Clock())
	if s.deps.Ranker != nil {
		ranked = s.deps.Ranker.RankCandidatesVector(ctx, viewer.ViewerProfile, ranked, matching.ClassicFallback(s.deps.Clock))
	}

	s.deps.Logger.DebugContext(ctx, "feed ranked",
		slog.String("viewer_id", s.viewerID),
		slog.String("region", string(mode)),
		slog.Int("candidates", len(ranked)),
		slog.Int("excluded", s.excluded.Len()),
	)
	return ranked, nil
}

// Swipe applies action to targetID. Likes and superlikes draw from the like
// bucket; passes are not rate limited. The target is excluded from later
// feeds once the swipe is accepted.
//
// A rejected token returns a *ratelimit.RateLimitedError before any other
// collaborator is called.
func (s *Session) Swipe(ctx context.Context, targetID string, action swipe.Action) (swipe.Result, error) {
	targetID = strings.TrimSpace(targetID)
	req := swipe.Request{ViewerID: s.viewerID, TargetID: targetID, Action: action}
	if err := req.Validate(); err != nil {
		return swipe.Result{}, err
	}

	if action.Positive() {
		if err := s.limiter.Consume(ratelimit.BucketLike); err != nil {
			s.deps.Logger.InfoContext(ctx, "swipe throttled",
				slog.String("viewer_id", s.viewerID),
				slog.String("bucket", ratelimit.BucketLike))
			return swipe.Result{}, err
		}
	}

	result, err := s.deps.Swiper.SendSwipeAction(ctx, req)
	if err != nil {
		return swipe.Result{}, err
	}

	s.excluded.Add(targetID)
	return result, nil
}

// Block blocks targetID for the viewer and excludes it from later feeds.
// Blocking the same user twice succeeds.
func (s *Session) Block(ctx context.Context, targetID string) error {
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return &swipe.ValidationError{Field: "target_id", Message: "target id is required"}
	}
	if targetID == s.viewerID {
		return &swipe.ValidationError{Field: "target_id", Message: "cannot block yourself"}
	}

	if err := s.limiter.Consume(ratelimit.BucketGeneric); err != nil {
		return err
	}

	if err := s.deps.Blocks.InsertBlock(ctx, s.viewerID, targetID); err != nil && !errors.Is(err, swipe.ErrDuplicateBlock) {
		return fmt.Errorf("failed to insert block: %w", err)
	}

	s.excluded.Add(targetID)
	s.deps.Logger.InfoContext(ctx, "user blocked",
		slog.String("viewer_id", s.viewerID),
		slog.String("target_id", targetID))
	return nil
}

// SendMessage sends text to the other user of matchID. Each send draws
// from the message bucket before the messenger is called.
func (s *Session) SendMessage(ctx context.Context, matchID, text string) (chat.Message, error) {
	if s.deps.Messenger == nil {
		return chat.Message{}, ErrMessagingDisabled
	}

	if err := s.limiter.Consume(ratelimit.BucketMessage); err != nil {
		s.deps.Logger.InfoContext(ctx, "message throttled",
			slog.String("viewer_id", s.viewerID),
			slog.String("bucket", ratelimit.BucketMessage))
		return chat.Message{}, err
	}

	return s.deps.Messenger.SendMessage(ctx, chat.Request{
		MatchID:  strings.TrimSpace(matchID),
		SenderID: s.viewerID,
		Text:     text,
	})
}

// MarkSeen excludes ids from later feeds without recording a swipe.
func (s *Session) MarkSeen(ids ...string) {
	s.excluded.AddAll(ids...)
}

// Reset clears the exclusion set and refills every rate limit bucket.
func (s *Session) Reset() {
	s.excluded.Reset()
	s.limiter.Reset()
}
