/*
errors.go - Centralized error types for the billing domain

PURPOSE:
  All domain error types in one place for consistency and
  discoverability. The taxonomy lets a caller distinguish "your data was
  wrong" (validation/transition), "the thing is missing" (not found),
  and "the store broke" (transport errors, which pass through from
  hstore unmodified and keep their path tag).

ERROR CATEGORIES:
  1. Validation errors - Entity invariant violated, field-level, never persisted
  2. Transition errors - Illegal status change or payment on a terminal invoice
  3. Not-found errors  - Referenced id absent

USAGE:
    if billing.IsValidation(err) {
        // surface field-level messages
    }
    if hstore.IsRetryable(err) {
        // store-level, retry with backoff
    }

SEE ALSO:
  - invoice.go: Raises validation/transition errors before any I/O
  - service.go: Never persists an entity that failed validation
*/
package billing

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of every field-level validation failure.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is the root of every missing-document failure.
	ErrNotFound = errors.New("not found")

	// ErrTransition is the root of every illegal status change.
	ErrTransition = errors.New("invalid status transition")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError carries field-level messages. It is raised by entity
// methods synchronously, before any persistence call.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// newValidationError collects field messages; returns nil when clean.
func newValidationError(fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

// NotFoundError identifies the missing document.
type NotFoundError struct {
	Kind string // "invoice", "client"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// TransitionError describes an illegal status change, including a
// payment attempted on a terminal invoice.
type TransitionError struct {
	From   Status
	To     Status
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot transition %s -> %s: %s", e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("cannot transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation returns true for field-level validation failures.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsNotFound returns true when a referenced id is absent.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsTransition returns true for illegal status changes.
func IsTransition(err error) bool { return errors.Is(err, ErrTransition) }

// IsClientError returns true if the error is due to invalid caller input
// rather than infrastructure.
func IsClientError(err error) bool {
	return IsValidation(err) || IsTransition(err) || IsNotFound(err)
}
