package ports

import (
	"context"
	"io"
)

// FetchFunc downloads media into w. It is invoked at most once per key for
// any number of concurrent GetOrFetch callers.
type FetchFunc func(ctx context.Context, w io.Writer) error

// CacheStore is the shared, content-addressed media store. Keys are hashes
// of canonical locators, never raw user text.
type CacheStore interface {
	// Get returns the file path for key and refreshes its last-access time.
	// The second return value is false on a miss.
	Get(key string) (string, bool)

	// GetOrFetch returns the cached path for key, downloading via fetch on a
	// miss. Concurrent calls for the same key share one download; later
	// callers wait for and reuse the in-flight result.
	GetOrFetch(ctx context.Context, key string, fetch FetchFunc) (string, error)

	// Remove deletes the entry and its file. Removing an absent key is a
	// no-op.
	Remove(key string) error
}
