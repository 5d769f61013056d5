package generation

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

// OpenAIGenerator calls an OpenAI-compatible chat completions endpoint. Setting
// baseURL points it at a self-hosted runtime serving a local model.
type OpenAIGenerator struct {
	client  openai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewOpenAIGenerator creates a chat completions client. The API key may be empty
// only when baseURL targets a local server.
func NewOpenAIGenerator(apiKey, model, baseURL string, timeout time.Duration, logger *zap.Logger) (*OpenAIGenerator, error) {
	if apiKey == "" && baseURL == "" {
		return nil, fmt.Errorf("openai API key is required when base_url is not set")
	}
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIGenerator{
		client:  openai.NewClient(opts...),
		model:   model,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Generate sends prompt as a single user message and returns the first choice.
func (o *OpenAIGenerator) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	ctx, cancel := withTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		MaxTokens:   openai.Int(int64(opts.MaxNewTokens)),
		Temperature: openai.Float(opts.Temperature),
		TopP:        openai.Float(opts.TopP),
	})
	if err != nil {
		return "", fmt.Errorf("openai generate: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("openai: %w", ErrEmptyOutput)
	}
	o.logger.Debug("openai generation done",
		zap.String("model", o.model),
		zap.Duration("took", time.Since(start)))
	return resp.Choices[0].Message.Content, nil
}

// Name returns "openai".
func (o *OpenAIGenerator) Name() string { return "openai" }

// Close is a no-op.
func (o *OpenAIGenerator) Close() error { return nil }
