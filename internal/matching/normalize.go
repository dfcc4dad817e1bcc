package matching

import (
	"math"
	"strings"
	"time"
)

const (
	// DefaultRadiusKm is the radius used to normalize distance in scoring.
	DefaultRadiusKm = 50.0

	// MaxRecencyHours is the inactivity after which recency contributes nothing.
	MaxRecencyHours = 72.0

	unknownDistanceScore = 0.5
	missingRecencyScore  = 0.4
	skewedRecencyScore   = 0.6
	missingFeedbackScore = 0.5
)

// NormalizeDistance maps a distance to [0, 1], closer is higher.
// Unknown distances (nil or NaN) are neutral at 0.5. Distances are clamped
// to [0, radiusKm]; a non-positive radius falls back to DefaultRadiusKm.
func NormalizeDistance(distanceKm *float64, radiusKm float64) float64 {
	if distanceKm == nil || math.IsNaN(*distanceKm) {
		return unknownDistanceScore
	}
	if radiusKm <= 0 || math.IsNaN(radiusKm) {
		radiusKm = DefaultRadiusKm
	}

	clamped := math.Min(math.Max(*distanceKm, 0), radiusKm)
	return 1 - clamped/radiusKm
}

// NormalizeRecency maps the time since last activity to [0, 1].
// Elapsed time is counted in whole hours.
//
// Returns 0.4 when lastActiveAt is unknown and 0.6 when it lies in the
// future relative to now (clock skew between client and server).
func NormalizeRecency(lastActiveAt *time.Time, now time.Time) float64 {
	if lastActiveAt == nil || lastActiveAt.IsZero() {
		return missingRecencyScore
	}

	elapsed := now.Sub(*lastActiveAt)
	if elapsed < 0 {
		return skewedRecencyScore
	}

	hours := math.Trunc(elapsed.Hours())
	if hours >= MaxRecencyHours {
		return 0
	}
	return 1 - hours/MaxRecencyHours
}

// NormalizeInterestOverlap returns the share of shared interests, compared
// case-insensitively and divided by the larger of the two lists.
func NormalizeInterestOverlap(viewerInterests, candidateInterests []string) float64 {
	if len(viewerInterests) == 0 || len(candidateInterests) == 0 {
		return 0
	}

	viewerSet := make(map[string]struct{}, len(viewerInterests))
	for _, interest := range viewerInterests {
		viewerSet[strings.ToLower(interest)] = struct{}{}
	}

	overlap := 0
	for _, interest := range candidateInterests {
		if _, ok := viewerSet[strings.ToLower(interest)]; ok {
			overlap++
		}
	}

	maxSize := max(len(viewerInterests), len(candidateInterests))
	return float64(overlap) / float64(maxSize)
}

// NormalizeFeedback maps a signed feedback score in [-1, 1] to [0, 1].
// A missing score is neutral at 0.5; out-of-range scores saturate.
func NormalizeFeedback(score *float64) float64 {
	if score == nil || math.IsNaN(*score) {
		return missingFeedbackScore
	}
	if *score > 1 {
		return 1
	}
	if *score < -1 {
		return 0
	}
	return (*score + 1) / 2
}
