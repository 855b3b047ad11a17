// Package store provides Backend implementations.
package store

import (
	"context"
	"sync"

	"github.com/keel/invoice-engine/hstore"
)

// =============================================================================
// MEMORY BACKEND - In-memory tree (for testing/dev)
// =============================================================================

// Memory is an in-memory hierarchical store. Nodes live in a nested map
// tree; subscriptions are delivered through the shared notifier hub.
type Memory struct {
	mu       sync.RWMutex
	root     map[string]any
	notifier *hstore.Notifier
}

func NewMemory() *Memory {
	return &Memory{
		root:     make(map[string]any),
		notifier: hstore.NewNotifier(),
	}
}

// Close cancels all subscriptions.
func (m *Memory) Close() {
	m.notifier.Close()
}

func (m *Memory) Get(_ context.Context, path string) (hstore.Value, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLocked(path)
}

func (m *Memory) getLocked(path string) (hstore.Value, bool, error) {
	node, ok := m.lookup(path)
	if !ok {
		return nil, false, nil
	}
	value, ok := node.(map[string]any)
	if !ok {
		// Scalar leaf: not addressable as a document node.
		return nil, false, nil
	}
	return deepCopy(value).(map[string]any), true, nil
}

func (m *Memory) Set(_ context.Context, path string, value hstore.Value) error {
	m.mu.Lock()
	parent, key := m.ensureParent(path)
	parent[key] = deepCopy(map[string]any(value))
	m.mu.Unlock()

	m.publish(path)
	return nil
}

func (m *Memory) Merge(_ context.Context, path string, value hstore.Value) error {
	m.mu.Lock()
	parent, key := m.ensureParent(path)
	node, ok := parent[key].(map[string]any)
	if !ok {
		node = make(map[string]any)
		parent[key] = node
	}
	// Patch only the given fields; untouched fields survive.
	for k, v := range value {
		node[k] = deepCopy(v)
	}
	m.mu.Unlock()

	m.publish(path)
	return nil
}

func (m *Memory) Delete(_ context.Context, path string) error {
	segments := hstore.Split(path)
	if len(segments) == 0 {
		m.mu.Lock()
		m.root = make(map[string]any)
		m.mu.Unlock()
		m.publish(path)
		return nil
	}

	m.mu.Lock()
	m.deleteLocked(m.root, segments)
	m.mu.Unlock()

	m.publish(path)
	return nil
}

// deleteLocked removes the node and prunes parents left empty.
func (m *Memory) deleteLocked(node map[string]any, segments []string) {
	if len(segments) == 1 {
		delete(node, segments[0])
		return
	}
	child, ok := node[segments[0]].(map[string]any)
	if !ok {
		return
	}
	m.deleteLocked(child, segments[1:])
	if len(child) == 0 {
		delete(node, segments[0])
	}
}

func (m *Memory) Subscribe(path string, fn func(hstore.Snapshot)) (cancel func()) {
	return m.notifier.Subscribe(path, fn)
}

func (m *Memory) publish(changedPath string) {
	m.notifier.Publish(changedPath, func(watched string) hstore.Snapshot {
		m.mu.RLock()
		defer m.mu.RUnlock()
		value, exists, _ := m.getLocked(watched)
		return hstore.Snapshot{Path: watched, Value: value, Exists: exists}
	})
}

// =============================================================================
// TREE HELPERS
// =============================================================================

// lookup walks the tree; the caller holds at least a read lock.
func (m *Memory) lookup(path string) (any, bool) {
	var node any = m.root
	for _, seg := range hstore.Split(path) {
		current, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = current[seg]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

// ensureParent creates intermediate maps down to the parent of path and
// returns it with the final key. The caller holds the write lock.
func (m *Memory) ensureParent(path string) (map[string]any, string) {
	segments := hstore.Split(path)
	node := m.root
	for _, seg := range segments[:len(segments)-1] {
		child, ok := node[seg].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[seg] = child
		}
		node = child
	}
	return node, segments[len(segments)-1]
}

func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return v
	}
}
