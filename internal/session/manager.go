package session

import (
	"sync"
	"time"
)

// DefaultIdleTTL is how long an unused session is kept.
const DefaultIdleTTL = 30 * time.Minute

type entry struct {
	session  *Session
	lastUsed time.Time
}

// Manager keeps one Session per viewer and expires idle ones.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*entry
	deps     Deps
	idleTTL  time.Duration
}

// NewManager creates a Manager. A non-positive idleTTL uses DefaultIdleTTL.
func NewManager(deps Deps, idleTTL time.Duration) *Manager {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	return &Manager{
		sessions: make(map[string]*entry),
		deps:     deps.withDefaults(),
		idleTTL:  idleTTL,
	}
}

// Get returns the viewer's session, creating it on first use.
func (m *Manager) Get(viewerID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.deps.Clock()
	e, ok := m.sessions[viewerID]
	if !ok {
		e = &entry{session: New(viewerID, m.deps)}
		m.sessions[viewerID] = e
	}
	e.lastUsed = now
	return e.session
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Cleanup drops sessions idle for longer than the idle TTL and returns how
// many were removed.
func (m *Manager) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.deps.Clock().Add(-m.idleTTL)
	removed := 0
	for id, e := range m.sessions {
		if e.lastUsed.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}
