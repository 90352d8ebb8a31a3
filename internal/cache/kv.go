package cache

import (
	"context"
	"time"
)

// KV is a small key-value cache used for provider aggregate stats. Misses are
// not errors; a (nil, false, nil) result means the key is absent or expired.
type KV interface {
	// Get retrieves a value by key.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores a value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes a key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error
}
