// Copyright 2025 James Ross
package dispatch

import (
	"fmt"

	"github.com/flyingrobots/go-redis-work-queue/internal/operation"
)

// RateLimitedError is surfaced when the Rate Limiter Manager denies a
// request; the worker is responsible for re-enqueue/backoff, the
// client never blocks waiting for capacity.
type RateLimitedError struct {
	Provider string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("dispatch: %s rate limited", e.Provider)
}

// AuthenticationError is surfaced after a single reactive re-auth
// attempt still results in 401.
type AuthenticationError struct {
	Provider string
	Err      error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("dispatch: %s authentication failed: %v", e.Provider, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// APIError wraps any other non-2xx response.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dispatch: %s returned %d: %s", e.Provider, e.StatusCode, e.Body)
}

// CircuitOpenError is surfaced when the provider's circuit breaker is
// open; it is treated the same as any other transient dispatch
// failure by the scheduler's retry routing.
type CircuitOpenError struct {
	Provider string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("dispatch: circuit open for %s", e.Provider)
}

// MissingRecordIDError is surfaced for READ/UPDATE/DELETE operations
// that reach dispatch without a record_id. Submit accepts these
// operations; the missing id only becomes fatal here, and the
// scheduler's normal retry/dead-letter routing applies.
type MissingRecordIDError struct {
	Provider string
	Kind     operation.Kind
}

func (e *MissingRecordIDError) Error() string {
	return fmt.Sprintf("dispatch: %s %s requires a record_id", e.Provider, e.Kind)
}
