package usecase

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/arklim/authflow/internal/core/port"
)

const (
	defaultUsernameAttempts = 20
	minUsernameLength       = 3
)

// UsernameAllocator derives a free username from a display name or email.
// The check-then-create sequence is not atomic; the unique constraint on
// users.username is the final arbiter.
type UsernameAllocator struct {
	users       port.UserRepository
	maxAttempts int
	suffix      func() int
}

// NewUsernameAllocator bounds allocation to maxAttempts store lookups.
func NewUsernameAllocator(users port.UserRepository, maxAttempts int) *UsernameAllocator {
	if maxAttempts <= 0 {
		maxAttempts = defaultUsernameAttempts
	}
	return &UsernameAllocator{
		users:       users,
		maxAttempts: maxAttempts,
		suffix:      func() int { return 100 + rand.Intn(900) },
	}
}

// WithSuffixSource overrides the random suffix generator, used in tests.
func (a *UsernameAllocator) WithSuffixSource(fn func() int) *UsernameAllocator {
	if fn != nil {
		a.suffix = fn
	}
	return a
}

// Allocate returns the normalized seed if free, otherwise the first free
// "<base>_NNN" candidate.
func (a *UsernameAllocator) Allocate(ctx context.Context, seed string) (string, error) {
	base := NormalizeUsernameSeed(seed)
	candidate := base

	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		if attempt > 0 {
			candidate = base + "_" + strconv.Itoa(a.suffix())
		}

		taken, err := a.users.ExistsByUsername(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check username availability: %w", err)
		}
		if !taken {
			return candidate, nil
		}
	}

	return "", ErrAllocationExhausted
}

// NormalizeUsernameSeed keeps the local part of an email, lowercases it,
// drops everything outside [a-z0-9] and left-pads with '0' to three runes.
func NormalizeUsernameSeed(seed string) string {
	if at := strings.IndexByte(seed, '@'); at >= 0 {
		seed = seed[:at]
	}

	var b strings.Builder
	for _, r := range strings.ToLower(seed) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}

	base := b.String()
	if len(base) < minUsernameLength {
		base = strings.Repeat("0", minUsernameLength-len(base)) + base
	}
	return base
}
