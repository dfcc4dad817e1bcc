package matching

import "time"

// Signal weights for the classic score. They sum to 1.0 so the score stays in [0, 1].
const (
	WeightDistance  = 0.35
	WeightRecency   = 0.25
	WeightInterests = 0.25
	WeightFeedback  = 0.15
)

// Signals holds the four normalized inputs of a candidate score.
type Signals struct {
	Distance  float64
	Recency   float64
	Interests float64
	Feedback  float64
}

// Combine computes the weighted score for already normalized signals.
func (s Signals) Combine() float64 {
	return s.Distance*WeightDistance +
		s.Recency*WeightRecency +
		s.Interests*WeightInterests +
		s.Feedback*WeightFeedback
}

// CandidateSignals normalizes the raw signals of a candidate relative to the viewer.
// Distance is always normalized against DefaultRadiusKm, independent of the
// viewer's search radius.
func CandidateSignals(candidate Candidate, viewer ViewerProfile, now time.Time) Signals {
	return Signals{
		Distance:  NormalizeDistance(candidate.DistanceKm, DefaultRadiusKm),
		Recency:   NormalizeRecency(candidate.LastActiveAt, now),
		Interests: NormalizeInterestOverlap(viewer.Interests, candidate.Interests),
		Feedback:  NormalizeFeedback(candidate.FeedbackScore),
	}
}

// ComputeCandidateScore returns the classic rank score of a candidate in [0, 1].
func ComputeCandidateScore(candidate Candidate, viewer ViewerProfile, now time.Time) float64 {
	return CandidateSignals(candidate, viewer, now).Combine()
}
