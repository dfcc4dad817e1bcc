package matching

import (
	"math"
	"testing"
	"time"
)

func TestWeightsSumToOne(t *testing.T) {
	sum := WeightDistance + WeightRecency + WeightInterests + WeightFeedback
	if math.Abs(sum-1) > epsilon {
		t.Errorf("expected weights to sum to 1, got %f", sum)
	}
}

func TestComputeCandidateScore_Scenario(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	viewer := ViewerProfile{ID: "viewer", Interests: []string{"Reisen", "Kochen", "Sport"}}
	candidate := Candidate{
		ID:            "cand",
		Interests:     []string{"Reisen", "Musik"},
		DistanceKm:    floatPtr(5),
		LastActiveAt:  timePtr(now),
		FeedbackScore: floatPtr(0.2),
	}

	signals := CandidateSignals(candidate, viewer, now)
	if math.Abs(signals.Distance-0.9) > epsilon {
		t.Errorf("expected distance 0.9, got %f", signals.Distance)
	}
	if math.Abs(signals.Interests-1.0/3.0) > epsilon {
		t.Errorf("expected interests 1/3, got %f", signals.Interests)
	}
	if signals.Recency != 1 {
		t.Errorf("expected recency 1, got %f", signals.Recency)
	}
	if math.Abs(signals.Feedback-0.6) > epsilon {
		t.Errorf("expected feedback 0.6, got %f", signals.Feedback)
	}

	expected := 0.9*0.35 + 1*0.25 + (1.0/3.0)*0.25 + 0.6*0.15
	got := ComputeCandidateScore(candidate, viewer, now)
	if math.Abs(got-expected) > epsilon {
		t.Errorf("expected score %f, got %f", expected, got)
	}
}

func TestComputeCandidateScore_Bounds(t *testing.T) {
	now := time.Now()
	viewer := ViewerProfile{Interests: []string{"a"}}

	best := Candidate{
		Interests:     []string{"a"},
		DistanceKm:    floatPtr(0),
		LastActiveAt:  timePtr(now),
		FeedbackScore: floatPtr(1),
	}
	if got := ComputeCandidateScore(best, viewer, now); math.Abs(got-1) > epsilon {
		t.Errorf("expected best score 1, got %f", got)
	}

	worst := Candidate{
		Interests:     []string{"b"},
		DistanceKm:    floatPtr(500),
		LastActiveAt:  timePtr(now.Add(-100 * time.Hour)),
		FeedbackScore: floatPtr(-1),
	}
	if got := ComputeCandidateScore(worst, viewer, now); got != 0 {
		t.Errorf("expected worst score 0, got %f", got)
	}
}

func TestSignalsCombine_MonotonicInEachInput(t *testing.T) {
	base := Signals{Distance: 0.5, Recency: 0.5, Interests: 0.5, Feedback: 0.5}
	setters := map[string]func(s *Signals, v float64){
		"distance":  func(s *Signals, v float64) { s.Distance = v },
		"recency":   func(s *Signals, v float64) { s.Recency = v },
		"interests": func(s *Signals, v float64) { s.Interests = v },
		"feedback":  func(s *Signals, v float64) { s.Feedback = v },
	}

	for name, set := range setters {
		t.Run(name, func(t *testing.T) {
			prev := -1.0
			for v := 0.0; v <= 1.0; v += 0.1 {
				s := base
				set(&s, v)
				got := s.Combine()
				if got < prev {
					t.Fatalf("score decreased from %f to %f at %s=%f", prev, got, name, v)
				}
				prev = got
			}
		})
	}
}
