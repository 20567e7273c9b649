package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// RateLimited caps how often the wrapped transport is called.
type RateLimited struct {
	next    Transport
	limiter *rate.Limiter
}

// NewRateLimited allows perMinute requests per minute with a burst of one.
// A non-positive perMinute disables limiting.
func NewRateLimited(next Transport, perMinute int) *RateLimited {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Submit waits for a token, then forwards the request.
func (r *RateLimited) Submit(ctx context.Context, docID string, prompt Prompt) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: rate limit wait: %v", ErrTransport, err)
	}
	return r.next.Submit(ctx, docID, prompt)
}

// HealthCheck forwards to the wrapped transport without spending a token.
func (r *RateLimited) HealthCheck(ctx context.Context) error {
	return CheckHealth(ctx, r.next)
}
