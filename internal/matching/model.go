package matching

import "time"

// Candidate is a discoverable profile as delivered by the candidate source.
// It is read-only input for ranking.
type Candidate struct {
	ID            string     `json:"id"`
	DisplayName   string     `json:"display_name"`
	Bio           string     `json:"bio,omitempty"`
	Age           int        `json:"age,omitempty"`
	Gender        string     `json:"gender,omitempty"`
	Orientation   string     `json:"orientation,omitempty"`
	Interests     []string   `json:"interests"`
	Photos        []string   `json:"photos,omitempty"`
	DistanceKm    *float64   `json:"distance_km,omitempty"`
	LastActiveAt  *time.Time `json:"last_active_at,omitempty"`
	FeedbackScore *float64   `json:"-"` // Signed score in [-1, 1], never exposed to clients
}

// ViewerProfile is the acting user.
type ViewerProfile struct {
	ID        string
	Interests []string
	Latitude  *float64
	Longitude *float64
	RadiusKm  float64 // Preferred search radius for nearby discovery
}

// ScoredCandidate pairs a candidate with its score for the duration of a ranking pass.
type ScoredCandidate struct {
	Candidate Candidate
	Score     float64
}
