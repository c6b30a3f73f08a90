// Package storage wraps the object store holding archived submissions.
package storage

import (
	"context"
	"io"
)

// ObjectStorage is the small set of object operations the archive needs.
type ObjectStorage interface {
	// PutObject uploads sizeBytes from reader. sizeBytes may be -1 for unknown length.
	PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error

	// GetObject opens a reader for an object.
	// Caller must close the returned reader.
	GetObject(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error)
}
