package calls

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("calls: not found")
	ErrUnknownCall     = errors.New("calls: unknown provider call id")
	ErrProviderIDTaken = errors.New("calls: provider call id already bound")
	ErrInvalidEvent    = errors.New("calls: invalid event")
)

// ConflictError means a provider call id collided with another call, or a call
// was asked to rebind to a different id. It should never happen; callers escalate it.
type ConflictError struct {
	CallID         string
	ProviderCallID string
	// ExistingCallID is the call already holding ProviderCallID, if known.
	ExistingCallID string
	// BoundTo is the id CallID was already bound to, if any.
	BoundTo string
}

func (e *ConflictError) Error() string {
	if e.BoundTo != "" {
		return fmt.Sprintf("calls: call %s already bound to %s, refusing %s", e.CallID, e.BoundTo, e.ProviderCallID)
	}
	return fmt.Sprintf("calls: provider call id %s already bound to call %s", e.ProviderCallID, e.ExistingCallID)
}
