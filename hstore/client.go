/*
client.go - Store client wrapper over a Backend

PURPOSE:
  The Client is what the rest of the application talks to. On top of the
  raw Backend it adds:
  - Timestamp stamping: every write stamps updatedAt; a full set (and
    push) additionally stamps createdAt
  - Write deadlines: every mutating call is bounded by a timeout, and a
    timed-out write is reported as a distinct error kind because the
    write may or may not have applied
  - Path-tagged errors: every failure comes back as *PathError
  - Push ids: generated ids are globally unique and monotonically
    sortable within a collection, usable as an insertion-order proxy

CONCURRENCY:
  The store provides no version check on set/merge. A read-modify-write
  sequence through this client is NOT atomic; two concurrent writers to
  one document race last-writer-wins. See the service layer for where
  this matters.

USAGE:
  backend := store.NewMemory()
  client, err := hstore.New(backend)
  id, err := client.Push(ctx, "invoices", doc)

SEE ALSO:
  - types.go: Backend contract
  - errors.go: Error taxonomy
*/
package hstore

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	fieldCreatedAt = "createdAt"
	fieldUpdatedAt = "updatedAt"

	defaultWriteTimeout = 10 * time.Second
)

// Client wraps a Backend with stamping, deadlines and error tagging.
type Client struct {
	backend      Backend
	node         *snowflake.Node
	clock        func() time.Time
	writeTimeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithClock overrides the timestamp source. Tests use this for
// deterministic createdAt/updatedAt values.
func WithClock(clock func() time.Time) Option {
	return func(c *Client) { c.clock = clock }
}

// WithWriteTimeout bounds every mutating call.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Client) { c.writeTimeout = d }
}

// New creates a Client over backend. nodeID distinguishes concurrent
// writer processes so generated ids never collide; single-process
// deployments can pass 0 via NewDefault.
func New(backend Backend, nodeID int64, opts ...Option) (*Client, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, err
	}
	c := &Client{
		backend:      backend,
		node:         node,
		clock:        time.Now,
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewDefault creates a Client with writer node 0.
func NewDefault(backend Backend, opts ...Option) (*Client, error) {
	return New(backend, 0, opts...)
}

// =============================================================================
// READS
// =============================================================================

// Get returns the node at path. exists is false when absent.
func (c *Client) Get(ctx context.Context, path string) (Value, bool, error) {
	value, exists, err := c.backend.Get(ctx, path)
	if err != nil {
		return nil, false, &PathError{Op: "get", Path: path, Err: err}
	}
	return value, exists, nil
}

// =============================================================================
// WRITES - Always stamped, always bounded by the write deadline
// =============================================================================

// Set writes the node at path. merge=false replaces the whole node and
// stamps createdAt; merge=true patches only the given fields. Both stamp
// updatedAt.
func (c *Client) Set(ctx context.Context, path string, value Value, merge bool) error {
	stamped := Clone(value)
	now := c.clock().UTC().Format(time.RFC3339Nano)
	stamped[fieldUpdatedAt] = now

	op := "merge"
	if !merge {
		op = "set"
		if _, ok := stamped[fieldCreatedAt]; !ok {
			stamped[fieldCreatedAt] = now
		}
	}

	err := c.write(ctx, func(ctx context.Context) error {
		if merge {
			return c.backend.Merge(ctx, path, stamped)
		}
		return c.backend.Set(ctx, path, stamped)
	})
	if err != nil {
		return &PathError{Op: op, Path: path, Err: err}
	}
	return nil
}

// Delete removes the node at path and everything under it.
func (c *Client) Delete(ctx context.Context, path string) error {
	err := c.write(ctx, func(ctx context.Context) error {
		return c.backend.Delete(ctx, path)
	})
	if err != nil {
		return &PathError{Op: "delete", Path: path, Err: err}
	}
	return nil
}

// Push stores value under collectionPath with a generated id and returns
// the id. Ids are globally unique and sort in generation order, so the
// key order of a collection is an insertion-order proxy.
func (c *Client) Push(ctx context.Context, collectionPath string, value Value) (string, error) {
	id := c.node.Generate().String()
	if err := c.Set(ctx, Join(collectionPath, id), value, false); err != nil {
		return "", err
	}
	return id, nil
}

// write runs fn under the write deadline, translating a deadline hit
// into ErrWriteTimeout so callers can tell "maybe applied" from "failed".
func (c *Client) write(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()

	err := fn(ctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return ErrWriteTimeout
	}
	return err
}

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

// Subscribe registers fn for changes at path or below. Deliveries are
// asynchronous and carry the full current node value.
func (c *Client) Subscribe(path string, fn func(Snapshot)) (cancel func()) {
	return c.backend.Subscribe(path, fn)
}

// Ranger exposes the backend's pushdown capability, or nil when the
// backend cannot push queries down.
func (c *Client) Ranger() Ranger {
	if r, ok := c.backend.(Ranger); ok {
		return r
	}
	return nil
}
