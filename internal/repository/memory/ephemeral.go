package memory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/arklim/authflow/internal/core/port"
	"github.com/arklim/authflow/internal/repository"
)

type entry struct {
	value     string
	expiresAt time.Time
}

// EphemeralStore is an in-process port.EphemeralStore for single-instance
// deployments and tests. ttlcache evicts entries once their TTL passes;
// reads also check expiry against the store clock so tests can move time.
type EphemeralStore struct {
	cache *ttlcache.Cache[string, entry]
	now   func() time.Time
}

// NewEphemeralStore returns an empty store.
func NewEphemeralStore() *EphemeralStore {
	return &EphemeralStore{
		cache: ttlcache.New[string, entry](
			ttlcache.WithDisableTouchOnHit[string, entry](),
		),
		now: time.Now,
	}
}

var _ port.EphemeralStore = (*EphemeralStore)(nil)

// WithClock overrides the internal clock, used in tests.
func (s *EphemeralStore) WithClock(now func() time.Time) *EphemeralStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *EphemeralStore) Put(_ context.Context, key, value string, ttl time.Duration) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("key is required")
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	s.cache.Set(key, entry{value: value, expiresAt: s.now().Add(ttl)}, ttl)
	return nil
}

func (s *EphemeralStore) Get(_ context.Context, key string) (string, error) {
	item := s.cache.Get(key)
	if item == nil {
		return "", repository.ErrNotFound
	}

	e := item.Value()
	if !s.now().Before(e.expiresAt) {
		s.cache.Delete(key)
		return "", repository.ErrNotFound
	}
	return e.value, nil
}

func (s *EphemeralStore) Delete(_ context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}

// Len reports the number of entries not yet evicted.
func (s *EphemeralStore) Len() int {
	return s.cache.Len()
}

// StartJanitor runs ttlcache's expiry loop until ctx is cancelled.
func (s *EphemeralStore) StartJanitor(ctx context.Context) {
	go s.cache.Start()
	go func() {
		<-ctx.Done()
		s.cache.Stop()
	}()
}
