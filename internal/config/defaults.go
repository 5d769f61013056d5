package config

import "time"

// DefaultEntryCodes are the discipline-code prefixes that mark entries in the bulk source.
var DefaultEntryCodes = []string{"IAL", "ISO", "IBD", "ISW", "IES", "IED", "ILP", "MAT"}

// defaultAPIKeyEnv maps a generation provider to the environment variable holding its key.
var defaultAPIKeyEnv = map[string]string{
	"gemini": "GEMINI_API_KEY",
	"claude": "ANTHROPIC_API_KEY",
	"openai": "OPENAI_API_KEY",
}

var defaultModel = map[string]string{
	"gemini": "gemini-2.0-flash",
	"claude": "claude-sonnet-4-20250514",
	"openai": "gpt-4o-mini",
	"echo":   "echo",
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "onnx"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/kotae/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.OutputName == "" {
		cfg.Embedding.OutputName = "last_hidden_state"
	}
	if cfg.Embedding.Pooling == "" {
		cfg.Embedding.Pooling = "mean"
	}

	if cfg.Vector.IndexType == "" {
		cfg.Vector.IndexType = "memory"
	}

	g := &cfg.Generation
	if g.Provider == "" {
		g.Provider = "echo"
	}
	if g.Model == "" {
		g.Model = defaultModel[g.Provider]
	}
	if g.APIKeyEnv == "" {
		g.APIKeyEnv = defaultAPIKeyEnv[g.Provider]
	}
	if g.MaxNewTokens == 0 {
		g.MaxNewTokens = 200
	}
	if g.Temperature == 0 {
		g.Temperature = 0.7
	}
	if g.TopP == 0 {
		g.TopP = 0.9
	}
	if g.Timeout == 0 {
		g.Timeout = 120 * time.Second
	}

	if cfg.Ingest.MinSectionLength == 0 {
		cfg.Ingest.MinSectionLength = 50
	}
	if cfg.Ingest.SectionDelimiter == "" {
		cfg.Ingest.SectionDelimiter = "=== "
	}
	if cfg.Ingest.EntryCodes == nil {
		cfg.Ingest.EntryCodes = append([]string(nil), DefaultEntryCodes...)
	}

	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".pdf", ".docx", ".odt", ".rtf", ".xlsx"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
