// Package matching ranks discovery candidates for a viewer.
//
// Ranking happens in two tiers. The classic tier scores every candidate
// with a fixed-weight combination of four normalized signals and sorts
// them stably in descending order:
//
//	score = distance*0.35 + recency*0.25 + interests*0.25 + feedback*0.15
//
// The vector tier is optional and gated by a feature flag. It blends the
// classic score with an embedding similarity fetched from an external
// search:
//
//	blended = classic*ClassicWeight + max(similarity, 0)*EmbeddingWeight
//
// The blend is only applied when the similarity reaches
// SimilarityThreshold; weaker matches keep their classic score.
//
// Basic Usage:
//
//	ranked := matching.RankCandidatesClassic(candidates, viewer, time.Now())
//
//	ranker := matching.NewVectorRanker(matching.VectorRankerConfig{
//		Flags:      flags,
//		Embeddings: embeddings,
//		Search:     search,
//		Blend:      matching.DefaultBlend(),
//	})
//	ranked = ranker.RankCandidatesVector(ctx, viewer, candidates, matching.ClassicFallback(time.Now))
//
// Fallback:
//
// RankCandidatesVector never fails. A disabled flag, a missing embedding,
// a failed or empty similarity search, or a panic inside the blend all
// return the result of the supplied classic fallback.
//
// Calibration:
//
// The blend weights and threshold can be tuned at deploy time with a JSON
// calibration file, see LoadCalibration. The four signal weights are fixed.
package matching
