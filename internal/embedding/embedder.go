// Package embedding provides text embedding via ONNX and caching.
package embedding

import "context"

// Embedder produces unit-length vector embeddings for text.
// Identical input must produce identical output.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
	Close() error
}

// Pooling selects how token-level model output is reduced to one vector.
type Pooling string

const (
	// PoolingMean averages the token vectors of last_hidden_state weighted by the attention mask.
	PoolingMean Pooling = "mean"
	// PoolingNone reads a model output that is already [1, dim].
	PoolingNone Pooling = "none"
)

// ONNXConfig configures an ONNXEmbedder.
type ONNXConfig struct {
	ModelPath   string
	VocabPath   string
	LibraryPath string
	Dimensions  int
	MaxTokens   int
	CacheSize   int
	OutputName  string
	Pooling     Pooling
}

func (c *ONNXConfig) withDefaults() ONNXConfig {
	out := *c
	if out.Dimensions <= 0 {
		out.Dimensions = 384
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = 256
	}
	if out.CacheSize <= 0 {
		out.CacheSize = 10000
	}
	if out.OutputName == "" {
		out.OutputName = "last_hidden_state"
	}
	if out.Pooling == "" {
		out.Pooling = PoolingMean
	}
	return out
}

// embedEach calls embed for each text in order.
func embedEach(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}
