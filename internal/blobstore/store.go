// Package blobstore stores evidence file bytes outside the database.
// The database keeps only an opaque ref; the store resolves it back to
// content.  The disk implementation is the default; the interface keeps
// object storage backends pluggable.
package blobstore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a ref does not resolve to stored content.
var ErrNotFound = errors.New("blob not found")

// Store persists and retrieves opaque blobs by ref.
type Store interface {
	// Put stores the content and returns the ref to persist alongside
	// the evidence record.
	Put(ctx context.Context, r io.Reader) (string, error)
	// Get opens the content behind a ref.  The caller closes it.
	Get(ctx context.Context, ref string) (io.ReadCloser, error)
	// Exists reports whether a ref resolves without opening it.
	Exists(ctx context.Context, ref string) (bool, error)
}
