package generation

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/time/rate"
)

// Limited wraps a Generator so calls wait on a token bucket before reaching the provider.
type Limited struct {
	next    Generator
	limiter *rate.Limiter
}

// NewLimited allows requestsPerSecond calls per second, bursting up to the rounded-up rate.
func NewLimited(next Generator, requestsPerSecond float64) *Limited {
	burst := int(math.Ceil(requestsPerSecond))
	if burst < 1 {
		burst = 1
	}
	return &Limited{next: next, limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

// Generate waits for a token, then delegates.
func (l *Limited) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	return l.next.Generate(ctx, prompt, opts)
}

// Name returns the wrapped provider name.
func (l *Limited) Name() string { return l.next.Name() }

// Close closes the wrapped provider.
func (l *Limited) Close() error { return l.next.Close() }
