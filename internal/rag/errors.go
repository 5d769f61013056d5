package rag

import "fmt"

// Provider operations reported by ProviderError.
const (
	OpEmbed    = "embed"
	OpGenerate = "generate"
)

// ProviderError marks a failure of the embedding or generation provider.
// It is never retried; the wrapped error is the provider's own.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
