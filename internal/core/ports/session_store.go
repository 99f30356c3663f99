package ports

import (
	"context"
	"time"
)

// SessionStore is the TTL-aware key-value contract shared by every instance
// of the session manager. Each method is a single atomic operation.
type SessionStore interface {
	// Set writes value under key with the given expiry. When index is not
	// empty key is added to the set stored under index in the same step, and
	// the set's expiry is reset to ttl.
	Set(ctx context.Context, key, value string, ttl time.Duration, index string) error

	// Get returns the value under key; ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Delete removes key and reports whether it existed. Of several
	// concurrent deletes of one key exactly one observes deleted == true.
	Delete(ctx context.Context, key string) (deleted bool, err error)

	// Incr increments the counter under key. The first increment sets the
	// expiry to ttl; later increments leave it untouched. The post-increment
	// count and the remaining expiry are returned together.
	Incr(ctx context.Context, key string, ttl time.Duration) (count int64, remaining time.Duration, err error)

	// Members returns the keys recorded in the set under index. Members may
	// name keys that have since expired.
	Members(ctx context.Context, index string) ([]string, error)

	// Unindex removes keys from the set under index.
	Unindex(ctx context.Context, index string, keys ...string) error

	Ping(ctx context.Context) error
}
