// Package policy decides whether an actor may perform a write action.
//
// Two checkers are provided. WindowChecker counts the actor's recent rows
// in Postgres against a fixed limit per sliding window. BucketChecker
// consumes from a shared token bucket. Both fail open: when the backing
// store cannot answer, the action is allowed and the failure is logged.
package policy

import "context"

// ActionKind names a policed action.
type ActionKind string

const (
	KindLike    ActionKind = "like"
	KindMessage ActionKind = "message"
)

// DefaultDenialReason is used when a checker denies without a reason.
const DefaultDenialReason = "too many actions, please try again later"

// Decision is the outcome of a policy check.
type Decision struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason,omitempty"`
}

// Allowed returns an allowing decision.
func Allowed() Decision {
	return Decision{Allow: true}
}

// Denied returns a denying decision with reason.
func Denied(reason string) Decision {
	if reason == "" {
		reason = DefaultDenialReason
	}
	return Decision{Allow: false, Reason: reason}
}

// Checker checks and records one action by actorID.
type Checker interface {
	CheckAndConsume(ctx context.Context, actorID string, kind ActionKind) (Decision, error)
}

// AllowAll is a Checker that never denies.
type AllowAll struct{}

// CheckAndConsume always allows.
func (AllowAll) CheckAndConsume(ctx context.Context, actorID string, kind ActionKind) (Decision, error) {
	return Allowed(), nil
}
