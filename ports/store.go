package ports

import (
	"context"
	"time"
)

// KV is the shared key/value store used for nonces and token blobs.
// Get reports presence explicitly so "no value" is never conflated with a
// transport failure.
type KV interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Delete(ctx context.Context, key string) error

	// GetDelete atomically reads and removes a key. Consuming a nonce must
	// go through this so two concurrent requests cannot both succeed off
	// one issued value.
	GetDelete(ctx context.Context, key string) (value string, ok bool, err error)
}
