/*
errors.go - Centralized error types for the hierarchical store

PURPOSE:
  All store-level error types in one place for consistency and
  discoverability. Domain packages wrap these errors with their own
  context; callers classify them with the helpers at the bottom.

ERROR CATEGORIES:
  1. Transport errors - The store was unreachable or the write timed out
  2. Permission errors - The caller lacks rights on the path
  3. Path errors - Any failure tagged with the path it happened on

USAGE:
  Store implementations return the sentinel errors; the Client wraps
  every failure in a *PathError so callers always know which path broke:

    if hstore.IsRetryable(err) {
        // transport-level failure, safe to retry with backoff
    }

SEE ALSO:
  - client.go: Wraps backend errors with path context
  - store/memory.go: In-memory backend
*/
package hstore

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUnreachable is returned when the store cannot be reached at all.
	// Transport-level, safe to retry with backoff.
	ErrUnreachable = errors.New("store unreachable")

	// ErrWriteTimeout is returned when a write exceeded the client's write
	// deadline. The write may or may not have been applied - there are no
	// exactly-once semantics.
	ErrWriteTimeout = errors.New("write timed out")

	// ErrPermissionDenied is returned when the caller lacks rights on the
	// path. Not retryable.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrClosed is returned when operating on a closed backend.
	ErrClosed = errors.New("store closed")
)

// =============================================================================
// PATH ERROR - Every failure carries the path it happened on
// =============================================================================

// PathError tags a store failure with the operation and path, so a caller
// can distinguish "your data was wrong" from "the store was unreachable"
// and knows where it happened.
type PathError struct {
	Op   string // "get", "set", "merge", "delete", "push"
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("hstore: %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
// Timed-out writes are retryable but may have already applied.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnreachable) || errors.Is(err, ErrWriteTimeout)
}

// IsTimeout returns true if a write hit the client's write deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrWriteTimeout)
}

// IsPermission returns true if the caller lacks rights on the path.
func IsPermission(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}
