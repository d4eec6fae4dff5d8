package ports

import (
	"context"
	"fmt"
)

// DispatchErrorKind classifies delivery failures so the session manager can
// decide what to do with the session it just stored.
type DispatchErrorKind string

const (
	// DispatchTransient covers throttling, timeouts and provider 5xx: the
	// number may be fine, retrying later could work.
	DispatchTransient DispatchErrorKind = "transient"
	// DispatchPermanent covers malformed or unroutable numbers: retrying the
	// same request will never succeed.
	DispatchPermanent DispatchErrorKind = "permanent"
)

// DispatchResult is the uniform success shape. No backend-specific response
// fields may leak past this boundary.
type DispatchResult struct {
	ProviderMessageID string
}

// DispatchError is the uniform failure shape.
type DispatchError struct {
	Kind DispatchErrorKind
	Err  error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("sms dispatch (%s): %v", e.Kind, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// SMSSender is the capability every dispatch backend implements.
// Calls are cancellable and timeout-bounded by the caller's context.
type SMSSender interface {
	Send(ctx context.Context, phoneNumber, message string) (DispatchResult, error)
}
