// Package blob is the boundary to the media storage collaborator. Cadenza
// references stored objects by key but does not own them; any
// S3-compatible service (or a plain directory in development) can sit
// behind the Store interface.
package blob

import (
	"context"
	"io"
)

// Store holds opaque media objects under caller-supplied keys.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, size int64) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}
