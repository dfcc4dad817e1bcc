// Package candidate loads discoverable profiles for a viewer.
package candidate

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/onnwee/matchfeed/internal/geo"
	"github.com/onnwee/matchfeed/internal/matching"
)

// Region modes.
const (
	RegionNearby  RegionMode = "nearby"
	RegionCountry RegionMode = "country"
	RegionGlobal  RegionMode = "global"
)

const (
	// DefaultRadiusKm applies when a viewer has no stored search radius.
	DefaultRadiusKm = 25.0

	// DefaultMaxResults caps the candidates returned per fetch.
	DefaultMaxResults = 50

	// MinimumAge is the youngest age that is ever shown in discovery.
	MinimumAge = 18
)

var (
	// ErrViewerNotFound is returned when the viewer profile does not exist.
	ErrViewerNotFound = errors.New("viewer not found")

	// ErrInvalidRegion is returned for an unknown region mode.
	ErrInvalidRegion = errors.New("invalid region mode")
)

// RegionMode selects how far discovery reaches.
type RegionMode string

// ParseRegionMode parses s case-insensitively. Empty means nearby.
func ParseRegionMode(s string) (RegionMode, error) {
	switch m := RegionMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return RegionNearby, nil
	case RegionNearby, RegionCountry, RegionGlobal:
		return m, nil
	default:
		return "", ErrInvalidRegion
	}
}

// Viewer is the acting user as loaded from storage.
type Viewer struct {
	matching.ViewerProfile
	Country string
}

// Source provides viewers and their candidate pools. GetCandidatesForProfile
// skips the viewer lookup for callers that already hold the viewer.
type Source interface {
	GetViewer(ctx context.Context, viewerID string) (Viewer, error)
	GetCandidatesForViewer(ctx context.Context, viewerID string, mode RegionMode, excludeIDs []string) ([]matching.Candidate, error)
	GetCandidatesForProfile(ctx context.Context, viewer Viewer, mode RegionMode, excludeIDs []string) ([]matching.Candidate, error)
}

// Config tunes candidate selection.
type Config struct {
	DefaultRadiusKm float64
	MaxResults      int
	Clock           func() time.Time
}

func (c Config) withDefaults() Config {
	if c.DefaultRadiusKm <= 0 {
		c.DefaultRadiusKm = DefaultRadiusKm
	}
	if c.MaxResults <= 0 {
		c.MaxResults = DefaultMaxResults
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// Profile is a stored profile row.
type Profile struct {
	ID            string
	DisplayName   string
	Bio           string
	Birthdate     time.Time
	Gender        string
	Orientation   string
	Interests     []string
	Photos        []string
	Latitude      *float64
	Longitude     *float64
	Country       string
	RadiusKm      float64
	LastActiveAt  *time.Time
	FeedbackScore *float64
	Hidden        bool
}

// Age returns the completed years between birthdate and now.
func Age(birthdate, now time.Time) int {
	if birthdate.IsZero() {
		return 0
	}
	years := now.Year() - birthdate.Year()
	anniversary := birthdate.AddDate(years, 0, 0)
	if now.Before(anniversary) {
		years--
	}
	return years
}

func (p Profile) viewer(defaultRadius float64) Viewer {
	radius := p.RadiusKm
	if radius <= 0 {
		radius = defaultRadius
	}
	return Viewer{
		ViewerProfile: matching.ViewerProfile{
			ID:        p.ID,
			Interests: p.Interests,
			Latitude:  p.Latitude,
			Longitude: p.Longitude,
			RadiusKm:  radius,
		},
		Country: p.Country,
	}
}

// selector applies the shared candidate rules to profile rows in order.
type selector struct {
	viewer   Viewer
	mode     RegionMode
	exclude  map[string]struct{}
	now      time.Time
	max      int
	origin   geo.Point
	hasPoint bool
}

func newSelector(viewer Viewer, mode RegionMode, excludeIDs []string, now time.Time, max int) *selector {
	exclude := make(map[string]struct{}, len(excludeIDs))
	for _, id := range excludeIDs {
		exclude[id] = struct{}{}
	}
	origin, ok := geo.PointFrom(viewer.Latitude, viewer.Longitude)
	return &selector{
		viewer:   viewer,
		mode:     mode,
		exclude:  exclude,
		now:      now,
		max:      max,
		origin:   origin,
		hasPoint: ok,
	}
}

// accept converts p to a candidate, or reports false when it must be skipped.
func (s *selector) accept(p Profile) (matching.Candidate, bool) {
	if p.ID == s.viewer.ID || p.Hidden {
		return matching.Candidate{}, false
	}
	if _, excluded := s.exclude[p.ID]; excluded {
		return matching.Candidate{}, false
	}
	if s.mode == RegionCountry && !strings.EqualFold(p.Country, s.viewer.Country) {
		return matching.Candidate{}, false
	}

	age := Age(p.Birthdate, s.now)
	if age < MinimumAge {
		return matching.Candidate{}, false
	}

	var distance *float64
	if s.hasPoint {
		if point, ok := geo.PointFrom(p.Latitude, p.Longitude); ok {
			d := geo.HaversineKm(s.origin, point)
			distance = &d
		}
	}
	// Profiles without a known distance stay in the nearby pool.
	if s.mode == RegionNearby && distance != nil && *distance > s.viewer.RadiusKm {
		return matching.Candidate{}, false
	}

	interests := p.Interests
	if interests == nil {
		interests = []string{}
	}

	return matching.Candidate{
		ID:            p.ID,
		DisplayName:   p.DisplayName,
		Bio:           p.Bio,
		Age:           age,
		Gender:        p.Gender,
		Orientation:   p.Orientation,
		Interests:     interests,
		Photos:        p.Photos,
		DistanceKm:    distance,
		LastActiveAt:  p.LastActiveAt,
		FeedbackScore: p.FeedbackScore,
	}, true
}
