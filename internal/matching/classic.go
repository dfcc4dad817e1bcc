package matching

import (
	"sort"
	"time"
)

// FallbackFunc ranks candidates without external calls.
type FallbackFunc func(candidates []Candidate, viewer ViewerProfile) []Candidate

// RankCandidatesClassic scores every candidate and sorts them by score,
// highest first. Candidates with equal scores keep their input order.
// The input slice is not modified.
func RankCandidatesClassic(candidates []Candidate, viewer ViewerProfile, now time.Time) []Candidate {
	scored := make([]ScoredCandidate, len(candidates))
	for i, c := range candidates {
		scored[i] = ScoredCandidate{Candidate: c, Score: ComputeCandidateScore(c, viewer, now)}
	}
	return sortScored(scored)
}

// ClassicFallback adapts RankCandidatesClassic to a FallbackFunc that reads
// the current time from clock on every pass.
func ClassicFallback(clock func() time.Time) FallbackFunc {
	if clock == nil {
		clock = time.Now
	}
	return func(candidates []Candidate, viewer ViewerProfile) []Candidate {
		return RankCandidatesClassic(candidates, viewer, clock())
	}
}

func sortScored(scored []ScoredCandidate) []Candidate {
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	ranked := make([]Candidate, len(scored))
	for i, s := range scored {
		ranked[i] = s.Candidate
	}
	return ranked
}
