package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

// ClaudeGenerator calls the Anthropic Messages API.
type ClaudeGenerator struct {
	client  anthropic.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewClaudeGenerator creates an Anthropic client for model. baseURL is optional.
func NewClaudeGenerator(apiKey, model, baseURL string, timeout time.Duration, logger *zap.Logger) (*ClaudeGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClaudeGenerator{
		client:  anthropic.NewClient(opts...),
		model:   model,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Generate sends prompt as a single user message.
func (c *ClaudeGenerator) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(opts.MaxNewTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		Temperature: anthropic.Float(opts.Temperature),
		TopP:        anthropic.Float(opts.TopP),
	}
	start := time.Now()
	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude generate: %w", err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("claude: %w", ErrEmptyOutput)
	}
	c.logger.Debug("claude generation done",
		zap.String("model", c.model),
		zap.Duration("took", time.Since(start)))
	return out.String(), nil
}

// Name returns "claude".
func (c *ClaudeGenerator) Name() string { return "claude" }

// Close is a no-op.
func (c *ClaudeGenerator) Close() error { return nil }
