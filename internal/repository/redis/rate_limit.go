package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	uuid "github.com/google/uuid"
	red "github.com/redis/go-redis/v9"

	"github.com/arklim/authflow/internal/core/port"
)

// RateLimitRepository persists rate-limit attempts in Redis sorted sets
// scored by attempt time in milliseconds.
type RateLimitRepository struct {
	client *red.Client
	prefix string
}

// NewRateLimitRepository constructs a repository using the provided Redis client and key prefix.
func NewRateLimitRepository(client *red.Client, keyPrefix string) *RateLimitRepository {
	return &RateLimitRepository{client: client, prefix: keyPrefix}
}

var _ port.RateLimitStore = (*RateLimitRepository)(nil)

// Hit trims the window, records the attempt and rolls it back again when the
// limit is exceeded.
func (r *RateLimitRepository) Hit(ctx context.Context, identifier string, limit int, window time.Duration, now time.Time) (port.RateLimitDecision, error) {
	if window <= 0 {
		return port.RateLimitDecision{}, errors.New("window must be positive")
	}
	if limit <= 0 {
		return port.RateLimitDecision{}, errors.New("limit must be positive")
	}

	key := r.key(identifier)
	member := strconv.FormatInt(now.UnixMilli(), 10) + "-" + uuid.NewString()
	threshold := strconv.FormatInt(now.Add(-window).UnixMilli(), 10)

	var (
		card   *red.IntCmd
		oldest *red.ZSliceCmd
	)
	_, err := r.client.TxPipelined(ctx, func(pipe red.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+threshold)
		pipe.ZAdd(ctx, key, red.Z{Score: float64(now.UnixMilli()), Member: member})
		card = pipe.ZCard(ctx, key)
		oldest = pipe.ZRangeWithScores(ctx, key, 0, 0)
		pipe.PExpire(ctx, key, window)
		return nil
	})
	if err != nil {
		return port.RateLimitDecision{}, fmt.Errorf("redis rate limit pipeline: %w", err)
	}

	decision := port.RateLimitDecision{
		Allowed: true,
		Count:   int(card.Val()),
		ResetAt: now.Add(window),
	}
	if zs := oldest.Val(); len(zs) > 0 {
		decision.ResetAt = time.UnixMilli(int64(zs[0].Score)).Add(window)
	}

	if decision.Count > limit {
		if err := r.client.ZRem(ctx, key, member).Err(); err != nil {
			return port.RateLimitDecision{}, fmt.Errorf("redis zrem: %w", err)
		}
		decision.Allowed = false
		decision.Count = limit
	}

	return decision, nil
}

func (r *RateLimitRepository) key(identifier string) string {
	if r.prefix == "" {
		return identifier
	}
	return fmt.Sprintf("%s:%s", r.prefix, identifier)
}
