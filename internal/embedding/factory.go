package embedding

import (
	"fmt"

	"go.uber.org/zap"
)

// Provider names accepted by New.
const (
	ProviderONNX = "onnx"
	ProviderMock = "mock"
)

// New creates the configured embedder. When the ONNX embedder cannot start
// (no model, no runtime, built without cgo) it logs a warning and returns a MockEmbedder.
func New(provider string, cfg ONNXConfig, logger *zap.Logger) (Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	switch provider {
	case ProviderMock:
		return NewMockEmbedder(cfg.Dimensions), nil
	case ProviderONNX, "":
		e, err := NewONNXEmbedder(cfg)
		if err != nil {
			logger.Warn("ONNX embedder unavailable, falling back to mock embeddings",
				zap.String("model_path", cfg.ModelPath),
				zap.Error(err))
			return NewMockEmbedder(cfg.Dimensions), nil
		}
		logger.Info("ONNX embedder ready",
			zap.String("model_path", cfg.ModelPath),
			zap.Int("dimensions", cfg.Dimensions),
			zap.String("pooling", string(cfg.Pooling)))
		return e, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: onnx, mock)", provider)
	}
}
