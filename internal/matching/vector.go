package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/matchfeed/internal/tracing"
)

// DefaultVectorFlag is the feature flag that gates vector ranking.
const DefaultVectorFlag = "vector_ranking"

// ErrNoEmbedding is returned by an EmbeddingStore when the viewer has no vector.
var ErrNoEmbedding = errors.New("viewer embedding not found")

// Fallback reasons reported in metrics and logs.
const (
	FallbackFlagDisabled     = "flag_disabled"
	FallbackFlagError        = "flag_error"
	FallbackEmbeddingMissing = "embedding_missing"
	FallbackEmbeddingError   = "embedding_error"
	FallbackSearchError      = "search_error"
	FallbackSearchEmpty      = "search_empty"
	FallbackPanic            = "panic"
)

// FlagReader reports whether a feature flag is on for an identity.
type FlagReader interface {
	IsEnabled(ctx context.Context, flag, identity string) (bool, error)
}

// EmbeddingStore returns the embedding vector of a profile.
// Implementations return ErrNoEmbedding when the profile has none.
type EmbeddingStore interface {
	GetViewerEmbedding(ctx context.Context, viewerID string) ([]float64, error)
}

// Similarity is one nearest-neighbor result.
type Similarity struct {
	CandidateID string  `json:"candidate_id"`
	Similarity  float64 `json:"similarity"`
}

// SimilaritySearcher returns up to limit candidates most similar to the viewer.
type SimilaritySearcher interface {
	SearchSimilarCandidates(ctx context.Context, viewerID string, limit int) ([]Similarity, error)
}

// VectorRankerConfig holds the collaborators of a VectorRanker.
type VectorRankerConfig struct {
	Flags      FlagReader
	Embeddings EmbeddingStore
	Search     SimilaritySearcher
	Blend      Blend
	FlagName   string           // Defaults to DefaultVectorFlag
	Clock      func() time.Time // Defaults to time.Now
	Logger     *slog.Logger     // Defaults to slog.Default()
	Metrics    *Metrics         // Optional
}

// VectorRanker re-ranks candidates with embedding similarity.
// It is safe for concurrent use if its collaborators are.
type VectorRanker struct {
	flags      FlagReader
	embeddings EmbeddingStore
	search     SimilaritySearcher
	blend      Blend
	flagName   string
	now        func() time.Time
	logger     *slog.Logger
	metrics    *Metrics
}

// NewVectorRanker creates a VectorRanker. A zero Blend is replaced by DefaultBlend.
func NewVectorRanker(cfg VectorRankerConfig) *VectorRanker {
	if cfg.Blend == (Blend{}) {
		cfg.Blend = DefaultBlend()
	}
	if cfg.FlagName == "" {
		cfg.FlagName = DefaultVectorFlag
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &VectorRanker{
		flags:      cfg.Flags,
		embeddings: cfg.Embeddings,
		search:     cfg.Search,
		blend:      cfg.Blend,
		flagName:   cfg.FlagName,
		now:        cfg.Clock,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}
}

// Blend returns the blend parameters in use.
func (r *VectorRanker) Blend() Blend {
	return r.blend
}

// RankCandidatesVector ranks candidates by blending classic scores with
// embedding similarity. The result is always a permutation of candidates.
//
// When the flag is off the fallback is returned without any external call.
// Any failure after that point, including a panic, also returns the
// fallback. A nil fallback defaults to the classic ranker.
func (r *VectorRanker) RankCandidatesVector(ctx context.Context, viewer ViewerProfile, candidates []Candidate, fallback FallbackFunc) (ranked []Candidate) {
	if fallback == nil {
		fallback = ClassicFallback(r.now)
	}

	var (
		endSpan func(error)
		spanErr error
	)
	defer func() {
		if rec := recover(); rec != nil {
			spanErr = fmt.Errorf("vector ranking panicked: %v", rec)
			r.logger.ErrorContext(ctx, "vector ranking panicked, falling back to classic",
				"viewer_id", viewer.ID,
				"panic", rec)
			r.recordFallback(FallbackPanic)
			ranked = fallback(candidates, viewer)
		}
		if endSpan != nil {
			endSpan(spanErr)
		}
	}()

	if reason, ok := r.flagOn(ctx, viewer.ID); !ok {
		r.recordFallback(reason)
		return fallback(candidates, viewer)
	}

	start := time.Now()
	ctx, endSpan = tracing.StartSpan(ctx, "rank_candidates_vector")
	tracing.SetAttributes(ctx,
		attribute.String("viewer.id", viewer.ID),
		attribute.Int("candidates.count", len(candidates)),
	)

	scored, reason, err := r.blendScores(ctx, viewer, candidates)
	if reason != "" {
		spanErr = err
		if err != nil {
			r.logger.WarnContext(ctx, "vector ranking failed, falling back to classic",
				"viewer_id", viewer.ID,
				"reason", reason,
				"error", err)
		}
		r.recordFallback(reason)
		return fallback(candidates, viewer)
	}

	if r.metrics != nil {
		r.metrics.IncPass(StrategyVector)
		r.metrics.ObserveVectorDuration(time.Since(start).Seconds())
	}
	return sortScored(scored)
}

func (r *VectorRanker) flagOn(ctx context.Context, viewerID string) (string, bool) {
	if r.flags == nil {
		return FallbackFlagDisabled, false
	}
	enabled, err := r.flags.IsEnabled(ctx, r.flagName, viewerID)
	if err != nil {
		r.logger.WarnContext(ctx, "failed to read feature flag, treating as disabled",
			"flag", r.flagName,
			"error", err)
		return FallbackFlagError, false
	}
	if !enabled {
		return FallbackFlagDisabled, false
	}
	return "", true
}

// blendScores returns a non-empty reason when ranking must fall back.
func (r *VectorRanker) blendScores(ctx context.Context, viewer ViewerProfile, candidates []Candidate) ([]ScoredCandidate, string, error) {
	if r.embeddings == nil || r.search == nil {
		return nil, FallbackEmbeddingError, errors.New("vector ranking is not configured")
	}

	vector, err := r.embeddings.GetViewerEmbedding(ctx, viewer.ID)
	if errors.Is(err, ErrNoEmbedding) || (err == nil && len(vector) == 0) {
		return nil, FallbackEmbeddingMissing, nil
	}
	if err != nil {
		return nil, FallbackEmbeddingError, fmt.Errorf("failed to fetch viewer embedding: %w", err)
	}

	results, err := r.search.SearchSimilarCandidates(ctx, viewer.ID, len(candidates))
	if err != nil {
		return nil, FallbackSearchError, fmt.Errorf("failed to search similar candidates: %w", err)
	}
	if len(results) == 0 {
		return nil, FallbackSearchEmpty, nil
	}

	similarity := make(map[string]float64, len(results))
	for _, row := range results {
		similarity[row.CandidateID] = row.Similarity
	}

	now := r.now()
	scored := make([]ScoredCandidate, len(candidates))
	for i, c := range candidates {
		scored[i] = ScoredCandidate{
			Candidate: c,
			Score:     r.blendScore(ComputeCandidateScore(c, viewer, now), similarity[c.ID]),
		}
	}
	return scored, "", nil
}

// blendScore combines the classic score with a raw similarity.
// Negative and NaN similarities count as 0.
func (r *VectorRanker) blendScore(classic, similarity float64) float64 {
	vectorScore := similarity
	if math.IsNaN(vectorScore) || vectorScore < 0 {
		vectorScore = 0
	}
	if vectorScore < r.blend.SimilarityThreshold {
		return classic
	}
	return classic*r.blend.ClassicWeight + vectorScore*r.blend.EmbeddingWeight
}

func (r *VectorRanker) recordFallback(reason string) {
	if r.metrics == nil {
		return
	}
	r.metrics.IncFallback(reason)
	r.metrics.IncPass(StrategyClassic)
}
