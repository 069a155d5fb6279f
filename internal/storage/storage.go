package storage

import (
	"context"
	"io"
)

// Writer stores image bytes under a key
type Writer interface {
	// Put writes r at key and returns the resulting local path
	Put(ctx context.Context, key string, r io.Reader) (string, error)
}
