// Package storage persists attachment bytes outside the database. The
// sync pipeline only needs overwrite-safe put and get keyed by path.
package storage

import "context"

// BlobStore stores opaque byte blobs under slash-separated paths.
// Put must be overwrite-safe: writing the same path twice converges on
// the last write, which is what makes re-syncing an attachment harmless.
type BlobStore interface {
	Put(ctx context.Context, path, contentType string, data []byte) error
	Get(ctx context.Context, path string) ([]byte, error)
}
