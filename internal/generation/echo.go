package generation

import (
	"context"
	"strings"
)

// EchoGenerator is an offline provider that answers with the prompt's context block,
// wrapped in seq2seq-style markers the way a local T5 decoder emits them.
type EchoGenerator struct{}

// NewEchoGenerator returns an EchoGenerator.
func NewEchoGenerator() *EchoGenerator {
	return &EchoGenerator{}
}

// Generate returns "<pad> <context></s>", or the whole prompt when no context block is found.
func (e *EchoGenerator) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	body := contextBlock(prompt)
	if opts.MaxNewTokens > 0 {
		if words := strings.Fields(body); len(words) > opts.MaxNewTokens {
			body = strings.Join(words[:opts.MaxNewTokens], " ")
		}
	}
	return "<pad> " + body + "</s>", nil
}

// contextBlock returns the text between the "Context:" and "Question:" labels.
func contextBlock(prompt string) string {
	const open, closing = "Context:\n", "\n\nQuestion:"
	start := strings.Index(prompt, open)
	if start < 0 {
		return strings.TrimSpace(prompt)
	}
	rest := prompt[start+len(open):]
	if end := strings.LastIndex(rest, closing); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

// Name returns "echo".
func (e *EchoGenerator) Name() string { return "echo" }

// Close is a no-op.
func (e *EchoGenerator) Close() error { return nil }
