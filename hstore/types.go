/*
Package hstore provides a thin client over a tree-shaped key/value store.

PURPOSE:
  The application treats persistence as a hierarchical document store:
  string paths address nodes in a tree, documents are flat key/value maps,
  and a collection is just a parent node whose children are documents.
  This package defines the backend contract, the client wrapper that adds
  timestamp stamping / write deadlines / path-tagged errors, and the
  change-subscription mechanism that keeps concurrent viewers consistent.

KEY CONCEPTS IN THIS FILE (types.go):
  - Value: A node's content, a flat map of fields
  - Backend: The raw store contract (get/set/merge/delete/subscribe)
  - Snapshot: Full current value of a watched node, delivered on change
  - Ranger: Optional single-field query pushdown capability

DESIGN PRINCIPLES:
  1. Schemaless at this layer: typing happens at the domain codec boundary
  2. Subscriptions deliver full node values, never diffs
  3. No optimistic concurrency: set/merge is last-writer-wins

SEE ALSO:
  - client.go: Client wrapper with stamping and deadlines
  - store/memory.go: In-memory backend for tests/dev
  - store/sqlite (top-level): Production SQLite backend
*/
package hstore

import (
	"context"
	"strings"
)

// =============================================================================
// VALUE - A node's content
// =============================================================================

// Value is the content of one node: a flat map of fields. Nested maps
// appear when reading a parent node whose children are documents.
type Value = map[string]any

// Clone returns a shallow copy of v. Field values are shared; callers
// must not mutate nested structures in place.
func Clone(v Value) Value {
	if v == nil {
		return nil
	}
	out := make(Value, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// =============================================================================
// PATHS
// =============================================================================

// Join builds a path from segments, skipping empties.
func Join(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.Trim(s, "/")
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}

// Split returns the cleaned segments of a path.
func Split(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// isAffected reports whether a change at changed is visible from a watch
// on watched: either one is an ancestor of the other, or they are equal.
func isAffected(watched, changed string) bool {
	if watched == changed {
		return true
	}
	return strings.HasPrefix(changed, watched+"/") || strings.HasPrefix(watched, changed+"/")
}

// =============================================================================
// SNAPSHOT - Delivered to subscribers on every change
// =============================================================================

// Snapshot is the full current value of a watched node. Subscribers
// receive the whole node on every change, not a diff; a collection
// watcher must re-enumerate children on each delivery.
type Snapshot struct {
	Path   string
	Value  Value
	Exists bool
}

// Children returns the snapshot's child documents keyed by node key.
// Non-map children are skipped.
func (s Snapshot) Children() map[string]Value {
	out := make(map[string]Value)
	for key, raw := range s.Value {
		if child, ok := raw.(map[string]any); ok {
			out[key] = child
		}
	}
	return out
}

// =============================================================================
// BACKEND - Raw store contract
// =============================================================================

// Backend is the raw store contract. Implementations persist nodes under
// string paths and publish change notifications. Backends have no
// knowledge of domain invariants; all domain writes funnel through
// entity validation before reaching this layer.
type Backend interface {
	// Get returns the node at path. For a parent node the Value contains
	// one nested map per child. exists is false when the path is absent.
	Get(ctx context.Context, path string) (value Value, exists bool, err error)

	// Set replaces the whole node at path.
	Set(ctx context.Context, path string, value Value) error

	// Merge patches only the given fields of the node at path.
	Merge(ctx context.Context, path string, value Value) error

	// Delete removes the node at path and everything under it.
	Delete(ctx context.Context, path string) error

	// Subscribe registers fn for changes at path or below. fn receives
	// the full current value of the watched node, asynchronously, after
	// every change. The returned func cancels the subscription.
	Subscribe(path string, fn func(Snapshot)) (cancel func())
}

// =============================================================================
// RANGER - Optional single-field query pushdown
// =============================================================================

// RangeQuery is a single-field equality/range read over one collection.
// The store has no multi-field index; anything beyond this is filtered
// client-side by the query engine.
type RangeQuery struct {
	OrderBy string // field to order by, store-native ascending
	EqualTo any    // exact match on OrderBy, or nil
	StartAt any    // inclusive lower bound on OrderBy, or nil
	EndAt   any    // inclusive upper bound on OrderBy, or nil
	Limit   int    // 0 = no limit
}

// KeyedValue is one collection child annotated with its node key.
type KeyedValue struct {
	Key   string
	Value Value
}

// Ranger is implemented by backends that can push a single-field
// equality/range query down to the store instead of materializing the
// whole collection.
type Ranger interface {
	QueryRange(ctx context.Context, collectionPath string, q RangeQuery) ([]KeyedValue, error)
}
