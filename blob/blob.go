/*
Package blob is the file-blob storage boundary.

PURPOSE:
  Attachments are stored as opaque byte payloads under a path, returning
  a retrievable URL. The application treats this as an external
  capability: there is NO transactional tie between a blob write and the
  owning document write (an upload can succeed while the document write
  fails, and vice versa - no two-phase commit).

SEE ALSO:
  - memory.go: In-memory implementation for tests/dev
*/
package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned when deleting or reading a missing object.
var ErrNotFound = errors.New("blob: object not found")

// Object describes one stored blob.
type Object struct {
	URL         string `json:"url"`
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	ContentType string `json:"type"`
}

// Storage stores bytes under a path and hands back a retrievable URL.
type Storage interface {
	Put(ctx context.Context, path string, data []byte, contentType string) (Object, error)
	Delete(ctx context.Context, path string) error
}
