// Package errs defines the error taxonomy shared by the workflow, credit
// and generation services. Handlers map these to HTTP statuses.
package errs

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an entity or target does not exist.
var ErrNotFound = errors.New("not found")

// ErrStaleStatus is returned when a compare-and-transition update loses a
// race: the row's status no longer matches the expected prior status.
var ErrStaleStatus = errors.New("status changed concurrently")

// AuthorizationError means the caller's role lacks a required capability.
type AuthorizationError struct {
	Capability string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("not authorized: requires %s", e.Capability)
}

// InvalidTransitionError means an operation is not valid from the request's
// current status. It names both statuses so callers can self-correct.
type InvalidTransitionError struct {
	Operation      string
	CurrentStatus  string
	RequiredStatus string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s: status is %q, requires %q",
		e.Operation, e.CurrentStatus, e.RequiredStatus)
}

// InsufficientCreditsError carries the amounts needed to self-correct.
type InsufficientCreditsError struct {
	Required int
	Balance  int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, balance %d",
		e.Required, e.Balance)
}

// ProviderError wraps a failed generation call. The attempt is never
// consumed when one of these is returned.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// PollingTimeoutError means a remote task never reached a terminal state
// within the polling budget. It is a ProviderError variant.
type PollingTimeoutError struct {
	Provider string
	TaskID   string
	Attempts int
}

func (e *PollingTimeoutError) Error() string {
	return fmt.Sprintf("provider %s: task %s did not complete after %d polls",
		e.Provider, e.TaskID, e.Attempts)
}
