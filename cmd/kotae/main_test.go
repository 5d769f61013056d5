package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/ingest"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/rag"
	"go.uber.org/zap"
)

const catalogue = `=== Primeiro Período
Disciplinas obrigatórias do primeiro período do curso de sistemas.
IAL101
Introdução à Lógica
ISO102
Sistemas Operacionais I
`

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after question are moved first",
			args:     []string{"what is IAL101", "-output", "json"},
			expected: []string{"-output", "json", "what is IAL101"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-output", "json", "what is IAL101"},
			expected: []string{"-output", "json", "what is IAL101"},
		},
		{
			name:     "question only returns unchanged",
			args:     []string{"what is IAL101"},
			expected: []string{"what is IAL101"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"one", "two", "--server", ""},
			expected: []string{"--server", "", "one", "two"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("argsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestJoinArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"lógica"}, "lógica"},
		{"multiple words", []string{"carga", "horária"}, "carga horária"},
		{"quoted phrase", []string{"carga horária"}, "carga horária"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := joinArgs(tt.args); got != tt.expected {
				t.Errorf("joinArgs(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestLoadConfig_explicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := "server:\n  port: 9191\ngeneration:\n  provider: echo\n"
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, resolved, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if resolved != path {
		t.Errorf("resolved = %q, want %q", resolved, path)
	}
	if cfg.Server.Port != 9191 {
		t.Errorf("port = %d, want 9191", cfg.Server.Port)
	}
}

func TestLoadConfig_missingExplicitPath(t *testing.T) {
	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestLoadConfig_defaultPathUsesWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server:\n  port: 9292\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Server.Port != 9292 {
		t.Errorf("port = %d, want 9292", cfg.Server.Port)
	}
	if filepath.Base(resolved) != "config.yaml" || resolved == defaultConfigPath {
		t.Errorf("resolved = %q, want the working directory config", resolved)
	}
}

func TestLoadConfig_defaultPathFallsBackToDefaults(t *testing.T) {
	if _, err := os.Stat(defaultConfigPath); err == nil {
		t.Skip("a system config is installed")
	}
	t.Chdir(t.TempDir())

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if resolved != "" {
		t.Errorf("resolved = %q, want empty", resolved)
	}
	if cfg.Server.Port != 8080 || cfg.Generation.Provider != "echo" {
		t.Errorf("expected defaults, got port=%d provider=%q", cfg.Server.Port, cfg.Generation.Provider)
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Embedding.Provider = "mock"
	cfg.Embedding.Dimensions = 32
	cfg.Generation.Provider = "echo"
	return cfg
}

func TestInitializeComponents_preIngestAndAnswer(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "disciplinas.txt")
	if err := os.WriteFile(source, []byte(catalogue), 0600); err != nil {
		t.Fatal(err)
	}
	cfg := testConfig(t)
	cfg.Ingest.SourcePath = source
	cfg.Storage.JournalPath = filepath.Join(dir, "journal.db")

	ctx := context.Background()
	c, err := initializeComponents(ctx, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("initializeComponents: %v", err)
	}
	defer c.Close()

	if c.Journal == nil {
		t.Fatal("journal should be enabled")
	}
	if c.Store.Dimensions() != 32 {
		t.Errorf("store dimensions = %d, want 32", c.Store.Dimensions())
	}

	preIngest(ctx, cfg, c, zap.NewNop())
	want := len(ingest.NewChunker("", 0, nil).Texts(catalogue))
	if c.Store.Len() != want {
		t.Fatalf("store has %d passages, want %d", c.Store.Len(), want)
	}
	n, err := c.Journal.CountIngestions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(want) {
		t.Errorf("journal ingestions = %d, want %d", n, want)
	}

	ans, err := c.RAG.Answer(ctx, "IAL101\nIntrodução à Lógica")
	if err != nil {
		t.Fatal(err)
	}
	if ans.Context != "IAL101\nIntrodução à Lógica" {
		t.Errorf("context = %q, want the IAL101 entry", ans.Context)
	}
}

func TestPreIngest_missingSourceLeavesStoreEmpty(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ingest.SourcePath = filepath.Join(t.TempDir(), "missing.txt")
	c, err := initializeComponents(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	preIngest(context.Background(), cfg, c, zap.NewNop())
	if c.Store.Len() != 0 {
		t.Errorf("store should be empty, has %d", c.Store.Len())
	}
	ans, err := c.RAG.Answer(context.Background(), "anything")
	if err != nil {
		t.Fatal(err)
	}
	if ans.Context != rag.NoContext {
		t.Errorf("context = %q, want %q", ans.Context, rag.NoContext)
	}
}

func TestInitializeComponents_unknownIndexFallsBackToMemory(t *testing.T) {
	cfg := testConfig(t)
	cfg.Vector.IndexType = "faiss"
	c, err := initializeComponents(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("initializeComponents: %v", err)
	}
	defer c.Close()
	if c.Store == nil || c.Store.Dimensions() != 32 {
		t.Fatal("expected a usable store")
	}
}

func TestRemoteIngester_postsEveryPassage(t *testing.T) {
	var (
		mu    sync.Mutex
		texts []string
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req models.IngestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == nil {
			http.Error(w, "bad", http.StatusBadRequest)
			return
		}
		mu.Lock()
		texts = append(texts, *req.Text)
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(models.IngestResponse{Status: models.StatusAdded, Text: *req.Text})
	}))
	defer ts.Close()

	path := filepath.Join(t.TempDir(), "disciplinas.txt")
	if err := os.WriteFile(path, []byte(catalogue), 0600); err != nil {
		t.Fatal(err)
	}
	chunker := ingest.NewChunker("", 0, nil)
	loader := ingest.NewLoader(remoteIngester{client: cli.NewClient(ts.URL, 0)}, chunker, extract.NewExtractor())
	n, err := loader.LoadFile(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	want := chunker.Texts(catalogue)
	if n != len(want) || !reflect.DeepEqual(texts, want) {
		t.Errorf("posted %d passages %q, want %q", n, texts, want)
	}
	if !strings.HasPrefix(texts[0], "=== Primeiro Período") {
		t.Errorf("first passage should be the section, got %q", texts[0])
	}
}

func TestPreviewFile_printsEveryPassage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disciplinas.txt")
	if err := os.WriteFile(path, []byte(catalogue), 0600); err != nil {
		t.Fatal(err)
	}
	var buf strings.Builder
	n, err := previewFile(&buf, ingest.NewChunker("", 0, nil), extract.NewExtractor(), path)
	if err != nil {
		t.Fatalf("previewFile: %v", err)
	}
	if n != 3 {
		t.Errorf("n = %d, want 3", n)
	}
	out := buf.String()
	for _, sub := range []string{"--- passage 0\n=== Primeiro Período", "--- passage 1\nIAL101\nIntrodução à Lógica\n", "--- passage 2\nISO102\nSistemas Operacionais I\n", "3 passages\n"} {
		if !strings.Contains(out, sub) {
			t.Errorf("preview missing %q:\n%s", sub, out)
		}
	}
}

func TestPreviewFile_missingSource(t *testing.T) {
	var buf strings.Builder
	if _, err := previewFile(&buf, ingest.NewChunker("", 0, nil), extract.NewExtractor(), filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Error("expected error for a missing file")
	}
	if buf.Len() != 0 {
		t.Errorf("nothing should be printed, got %q", buf.String())
	}
}
