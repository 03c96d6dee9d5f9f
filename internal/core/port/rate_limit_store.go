package port

import (
	"context"
	"time"
)

// RateLimitDecision is the outcome of recording one attempt.
type RateLimitDecision struct {
	Allowed bool
	// Count is the number of accepted attempts inside the window, this one included.
	Count int
	// ResetAt is when the oldest attempt in the window leaves it.
	ResetAt time.Time
}

// RateLimitStore records attempts in a sliding window. Rejected attempts are
// not counted.
type RateLimitStore interface {
	Hit(ctx context.Context, identifier string, limit int, window time.Duration, now time.Time) (RateLimitDecision, error)
}
