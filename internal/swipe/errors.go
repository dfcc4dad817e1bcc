package swipe

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("invalid swipe request")

	// ErrPolicyDenied matches every *PolicyDeniedError.
	ErrPolicyDenied = errors.New("action denied by policy")

	// ErrDuplicateLike is returned by a LikeStore when the like already exists.
	ErrDuplicateLike = errors.New("like already exists")

	// ErrDuplicateBlock is returned by a BlockStore when the block already exists.
	ErrDuplicateBlock = errors.New("block already exists")
)

// ValidationError reports malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// PolicyDeniedError reports an action rejected by the abuse policy.
type PolicyDeniedError struct {
	Reason string
}

func (e *PolicyDeniedError) Error() string {
	return e.Reason
}

// Is reports whether target is ErrPolicyDenied.
func (e *PolicyDeniedError) Is(target error) bool {
	return target == ErrPolicyDenied
}
