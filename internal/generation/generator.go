// Package generation provides text-generation providers behind one Generator interface.
package generation

import (
	"context"
	"errors"
	"time"
)

// ErrEmptyOutput is returned when a provider responds without any text.
var ErrEmptyOutput = errors.New("generator returned no text")

// Options are the sampling settings passed with every prompt.
type Options struct {
	MaxNewTokens int
	Temperature  float64
	TopP         float64
}

// DefaultOptions returns max_new_tokens 200, temperature 0.7, top_p 0.9.
func DefaultOptions() Options {
	return Options{MaxNewTokens: 200, Temperature: 0.7, TopP: 0.9}
}

// Generator turns a prompt into raw text. The output may contain provider control
// markers; callers are responsible for cleaning it.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
	Name() string
	Close() error
}

// withTimeout bounds one provider call. A zero timeout leaves ctx unchanged.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
