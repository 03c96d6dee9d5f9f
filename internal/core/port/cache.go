package port

import (
	"context"
	"time"
)

// EphemeralStore is a string-to-string map with per-entry expiry.
// Get returns repository.ErrNotFound for absent or expired keys.
type EphemeralStore interface {
	Put(ctx context.Context, key string, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}
