package domain

import (
	"context"
	"io"
)

// BlobReader retrieves data from object storage. Paths are either keys in a
// default bucket or fully qualified "s3://bucket/key" locations.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
}

// BlobWriter stores data in object storage, with the same path rules as
// BlobReader.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
