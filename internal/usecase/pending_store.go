package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/authflow/internal/core/domain"
	"github.com/arklim/authflow/internal/core/port"
	"github.com/arklim/authflow/internal/infra/logger"
	"github.com/arklim/authflow/internal/repository"
)

const (
	signupKeyPrefix = "signup:"
	resetKeyPrefix  = "password-reset:"
)

func signupKey(email string) string { return signupKeyPrefix + email }
func resetKey(email string) string  { return resetKeyPrefix + email }

// pendingStore serializes pending flow records as JSON on top of an
// EphemeralStore. Undecodable values read as absent.
type pendingStore struct {
	store  port.EphemeralStore
	logger *zap.Logger
}

func newPendingStore(store port.EphemeralStore, logger *zap.Logger) *pendingStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &pendingStore{store: store, logger: logger}
}

func (p *pendingStore) putJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", maskedKey(key), err)
	}
	if err := p.store.Put(ctx, key, string(raw), ttl); err != nil {
		return fmt.Errorf("store %s: %w", maskedKey(key), err)
	}
	return nil
}

// getJSON decodes key into dst and reports whether a usable record exists.
func (p *pendingStore) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := p.store.Get(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s: %w", maskedKey(key), err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		p.logger.Warn("discarding undecodable pending record", zap.String("key", maskedKey(key)), zap.Error(err))
		return false, nil
	}
	return true, nil
}

func (p *pendingStore) delete(ctx context.Context, key string) error {
	if err := p.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete %s: %w", maskedKey(key), err)
	}
	return nil
}

func (p *pendingStore) signup(ctx context.Context, email string) (*domain.PendingSignup, error) {
	var rec domain.PendingSignup
	ok, err := p.getJSON(ctx, signupKey(email), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &rec, nil
}

func (p *pendingStore) reset(ctx context.Context, email string) (*domain.PendingReset, error) {
	var rec domain.PendingReset
	ok, err := p.getJSON(ctx, resetKey(email), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &rec, nil
}

// maskedKey keeps addresses out of logs and error strings.
func maskedKey(key string) string {
	for _, prefix := range []string{signupKeyPrefix, resetKeyPrefix} {
		if rest, ok := strings.CutPrefix(key, prefix); ok {
			return prefix + logger.MaskEmail(rest)
		}
	}
	return "***"
}
