package generation

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/config"
	"go.uber.org/zap"
)

// New creates the configured provider, wrapped in a rate limiter when requests_per_second > 0.
func New(ctx context.Context, cfg *config.GenerationConfig, logger *zap.Logger) (Generator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		gen Generator
		err error
	)
	switch cfg.Provider {
	case "gemini":
		gen, err = NewGeminiGenerator(ctx, cfg.APIKey(), cfg.Model, cfg.Timeout, logger)
	case "claude":
		gen, err = NewClaudeGenerator(cfg.APIKey(), cfg.Model, cfg.BaseURL, cfg.Timeout, logger)
	case "openai":
		gen, err = NewOpenAIGenerator(cfg.APIKey(), cfg.Model, cfg.BaseURL, cfg.Timeout, logger)
	case "echo", "":
		gen = NewEchoGenerator()
	default:
		return nil, fmt.Errorf("unknown generation provider: %s (supported: gemini, claude, openai, echo)", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s generator: %w", cfg.Provider, err)
	}
	if cfg.RequestsPerSecond > 0 {
		gen = NewLimited(gen, cfg.RequestsPerSecond)
	}
	logger.Info("generator initialized",
		zap.String("provider", gen.Name()),
		zap.String("model", cfg.Model),
		zap.Float64("requests_per_second", cfg.RequestsPerSecond))
	return gen, nil
}

// OptionsFrom maps config sampling fields to Options, keeping defaults for unset values.
func OptionsFrom(cfg *config.GenerationConfig) Options {
	opts := DefaultOptions()
	if cfg.MaxNewTokens > 0 {
		opts.MaxNewTokens = cfg.MaxNewTokens
	}
	if cfg.Temperature > 0 {
		opts.Temperature = cfg.Temperature
	}
	if cfg.TopP > 0 {
		opts.TopP = cfg.TopP
	}
	return opts
}
