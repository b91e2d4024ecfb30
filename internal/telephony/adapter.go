package telephony

import (
	"context"
	"errors"
	"fmt"
)

// Adapter is the provider-agnostic interface the dialer depends on.
//
// Rules:
// - No provider API calls outside telephony adapters.
// - Request/response types stay provider-agnostic.
type Adapter interface {
	Name() string

	// InitiateDial places an outbound call and returns the provider's call id.
	InitiateDial(ctx context.Context, req DialRequest) (string, error)

	// SendSMS sends a text message. Providers without SMS return ErrUnsupported.
	SendSMS(ctx context.Context, to, body string) error
}

// DialRequest carries everything a provider needs to place one call.
type DialRequest struct {
	// CallID is the internal call id, passed to providers that accept metadata.
	CallID          string
	AgentInstanceID string
	LeadID          string
	LeadName        string
	ScriptID        string

	// To is E.164.
	To string
}

var ErrUnsupported = errors.New("telephony: operation not supported by provider")

// AdapterError is a dial or SMS failure reported by a provider.
type AdapterError struct {
	Provider string
	Op       string
	// StatusCode is the provider's HTTP status, 0 for transport failures.
	StatusCode int
	Err        error
}

func (e *AdapterError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("telephony: %s %s: status %d: %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("telephony: %s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }
