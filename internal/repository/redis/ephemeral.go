package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/authflow/internal/core/port"
	"github.com/arklim/authflow/internal/repository"
)

// EphemeralRepository stores short-lived string values with SET EX.
type EphemeralRepository struct {
	client *red.Client
	prefix string
}

// NewEphemeralRepository constructs a repository that namespaces every key
// under keyPrefix. An empty prefix leaves keys untouched.
func NewEphemeralRepository(client *red.Client, keyPrefix string) *EphemeralRepository {
	return &EphemeralRepository{
		client: client,
		prefix: strings.TrimSpace(keyPrefix),
	}
}

var _ port.EphemeralStore = (*EphemeralRepository)(nil)

// Put overwrites key with value and resets its expiry to ttl.
func (r *EphemeralRepository) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("key is required")
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Get returns repository.ErrNotFound once the entry expired or was deleted.
func (r *EphemeralRepository) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, red.Nil) {
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get: %w", err)
	}
	return value, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (r *EphemeralRepository) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (r *EphemeralRepository) key(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}
