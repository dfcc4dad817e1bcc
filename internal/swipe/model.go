// Package swipe records directional swipe actions and resolves matches.
//
// A like is stored at most once per (liker, liked) pair. A match is stored
// at most once per unordered pair, keyed by the lexicographically sorted
// pair of user ids so that both participants resolve the same row no
// matter who liked first.
package swipe

import (
	"strings"
	"time"
)

// Action is what a viewer did with a candidate.
type Action string

const (
	ActionPass      Action = "pass"
	ActionLike      Action = "like"
	ActionSuperlike Action = "superlike"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionPass, ActionLike, ActionSuperlike:
		return true
	}
	return false
}

// Positive reports whether a is stored as a like.
func (a Action) Positive() bool {
	return a == ActionLike || a == ActionSuperlike
}

// Request is one swipe by a viewer on a target.
type Request struct {
	ViewerID string `json:"viewer_id"`
	TargetID string `json:"target_id"`
	Action   Action `json:"action"`
}

// Validate checks the request without any I/O.
func (r Request) Validate() error {
	if strings.TrimSpace(r.ViewerID) == "" {
		return &ValidationError{Field: "viewer_id", Message: "viewer id is required"}
	}
	if strings.TrimSpace(r.TargetID) == "" {
		return &ValidationError{Field: "target_id", Message: "target id is required"}
	}
	if r.ViewerID == r.TargetID {
		return &ValidationError{Field: "target_id", Message: "cannot swipe on yourself"}
	}
	if !r.Action.Valid() {
		return &ValidationError{Field: "action", Message: "action must be one of pass, like, superlike"}
	}
	return nil
}

// Result is the outcome of a swipe. MatchID is empty when no match exists.
type Result struct {
	MatchID string `json:"match_id,omitempty"`
}

// Matched reports whether the swipe resolved a match.
func (r Result) Matched() bool {
	return r.MatchID != ""
}

// Like is one stored positive action.
type Like struct {
	Liker       string
	Liked       string
	IsSuperlike bool
	CreatedAt   time.Time
}

// Match is a mutual like between two users, stored in canonical order.
type Match struct {
	ID        string
	UserLow   string
	UserHigh  string
	CreatedAt time.Time
}

// CanonicalPair returns a and b sorted lexicographically.
func CanonicalPair(a, b string) (low, high string) {
	if b < a {
		return b, a
	}
	return a, b
}
