// Package imagecache provides keyed stores of encoded image bytes and an
// asynchronous lookup adapter that presents a store to the load controller as
// a CacheClient.
package imagecache

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound reports a cache miss. Callers distinguish it from genuine store
// failures with errors.Is; at the controller level a miss is not an error.
var ErrNotFound = errors.New("image not found in cache")

// Store is a keyed store of encoded image bytes. Implementations must be safe
// for concurrent use.
type Store interface {
	// Fetch returns the bytes stored for key, or an error wrapping ErrNotFound
	// on a miss.
	Fetch(ctx context.Context, key string) ([]byte, error)
	// Write stores data under key, replacing any previous value.
	Write(ctx context.Context, key string, data []byte) error
	io.Closer
}
