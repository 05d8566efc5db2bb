package core

import (
	"errors"
	"fmt"
)

// ErrDiscoveryLimit signals that the discovery traversal hit its URL budget.
// It is a normal termination condition, not a failure.
var ErrDiscoveryLimit = errors.New("discovery URL limit reached")

// ValidationError marks a target as unusable: malformed, or unreachable by
// the validation probe. It skips the target and is non-fatal to the session.
type ValidationError struct {
	Target string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("target %s failed validation: %v", e.Target, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// GenerationError marks a configuration defect detected before any network
// activity. It aborts the scan: nothing useful can run with broken config.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("payload generation: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
