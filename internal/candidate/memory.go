package candidate

import (
	"context"
	"sort"
	"sync"

	"github.com/onnwee/matchfeed/internal/matching"
)

// InMemorySource implements Source over a profile map.
// Candidates are returned most recently active first, then by id.
type InMemorySource struct {
	mu       sync.RWMutex
	profiles map[string]Profile
	blocked  map[string]map[string]struct{}
	cfg      Config
}

// NewInMemorySource creates an empty source.
func NewInMemorySource(cfg Config) *InMemorySource {
	return &InMemorySource{
		profiles: make(map[string]Profile),
		blocked:  make(map[string]map[string]struct{}),
		cfg:      cfg.withDefaults(),
	}
}

// Put stores or replaces a profile.
func (s *InMemorySource) Put(p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p
}

// Block hides blocked from blocker and blocker from blocked.
func (s *InMemorySource) Block(blocker, blocked string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pair := range [][2]string{{blocker, blocked}, {blocked, blocker}} {
		if s.blocked[pair[0]] == nil {
			s.blocked[pair[0]] = make(map[string]struct{})
		}
		s.blocked[pair[0]][pair[1]] = struct{}{}
	}
}

// GetViewer returns the viewer or ErrViewerNotFound.
func (s *InMemorySource) GetViewer(ctx context.Context, viewerID string) (Viewer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[viewerID]
	if !ok {
		return Viewer{}, ErrViewerNotFound
	}
	return p.viewer(s.cfg.DefaultRadiusKm), nil
}

// GetCandidatesForViewer returns up to MaxResults candidates for viewerID.
func (s *InMemorySource) GetCandidatesForViewer(ctx context.Context, viewerID string, mode RegionMode, excludeIDs []string) ([]matching.Candidate, error) {
	viewer, err := s.GetViewer(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	return s.GetCandidatesForProfile(ctx, viewer, mode, excludeIDs)
}

// GetCandidatesForProfile is GetCandidatesForViewer for an already loaded
// viewer.
func (s *InMemorySource) GetCandidatesForProfile(ctx context.Context, viewer Viewer, mode RegionMode, excludeIDs []string) ([]matching.Candidate, error) {
	viewerID := viewer.ID
	s.mu.RLock()
	rows := make([]Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		if _, blocked := s.blocked[viewerID][p.ID]; blocked {
			continue
		}
		rows = append(rows, p)
	}
	s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i].LastActiveAt, rows[j].LastActiveAt
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return rows[i].ID < rows[j].ID
	})

	sel := newSelector(viewer, mode, excludeIDs, s.cfg.Clock(), s.cfg.MaxResults)
	candidates := make([]matching.Candidate, 0, min(len(rows), s.cfg.MaxResults))
	for _, p := range rows {
		if len(candidates) >= sel.max {
			break
		}
		if c, ok := sel.accept(p); ok {
			candidates = append(candidates, c)
		}
	}
	return candidates, nil
}
