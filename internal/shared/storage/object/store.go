package object

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound indicates the requested object does not exist in the store.
var ErrNotFound = errors.New("object not found")

// ObjectStore defines the capability contract over an object storage backend.
type ObjectStore interface {
	// Save streams the reader contents to the given storage key.
	Save(ctx context.Context, storageKey string, contentType string, r io.Reader) (sizeBytes int64, err error)
	// Open returns a reader over a stored object.
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
	// Delete removes a stored object. Deleting a missing object is not an error.
	Delete(ctx context.Context, storageKey string) error
	// Presign returns a time-limited URL granting read access to the object.
	Presign(ctx context.Context, storageKey string, ttl time.Duration) (string, error)
}
