// Package main is the kotae CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/generation"
	"github.com/hyperjump/kotae/internal/ingest"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/kotae/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development) and uses it when present.
// A missing default config is not an error: every setting has a default.
// Returns the config and the path that was actually loaded ("" when none was).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// API keys may live in a .env next to the binary's working directory.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ask":
		runAsk()
	case "ingest":
		runIngest()
	case "status":
		runStatus()
	case "watch":
		runWatch()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config, debugFlag bool) *zap.Logger {
	logger, err := utils.NewLogger(cfg.Debug || debugFlag, cfg.LogLevel)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (requests, ingested passages, watcher events)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger := newLogger(cfg, *debug)
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	preIngest(ctx, cfg, components, logger)

	watchSvc := watcher.NewWatcher(
		cfg.Watch.Directories,
		cfg.Watch.Extensions,
		cfg.Watch.RecursiveOrDefault(),
		components.Loader,
		watcher.WithLogger(logger),
	)
	if err := watchSvc.Start(ctx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	watchSvc.SyncExistingFiles()

	opts := []server.Option{
		server.WithWatch(watchSvc, resolvedConfigPath),
		server.WithProviderNames(components.Embedder.Name(), components.Generator.Name()),
		server.WithLogger(logger),
	}
	if components.Journal != nil {
		opts = append(opts, server.WithJournal(components.Journal))
	}
	srv := server.NewServer(components.RAG, cfg, opts...)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	files, passages := watchSvc.Stats()
	logger.Info("Shutting down...",
		zap.Int("passages", components.Store.Len()),
		zap.Int64("inbox_files", files),
		zap.Int64("inbox_passages", passages))
	watchSvc.Stop()
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

// preIngest loads ingest.source_path into the store. A missing source leaves the store empty.
func preIngest(ctx context.Context, cfg *config.Config, c *Components, logger *zap.Logger) {
	if cfg.Ingest.SourcePath == "" {
		return
	}
	n, err := c.Loader.LoadFile(ctx, cfg.Ingest.SourcePath)
	switch {
	case errors.Is(err, ingest.ErrSourceNotFound):
		logger.Warn("ingest source not found, starting with an empty store",
			zap.String("path", cfg.Ingest.SourcePath))
	case err != nil:
		logger.Error("pre-ingest stopped", zap.String("path", cfg.Ingest.SourcePath),
			zap.Int("passages", n), zap.Error(err))
	default:
		logger.Info("pre-ingest complete", zap.String("path", cfg.Ingest.SourcePath), zap.Int("passages", n))
	}
}

// argsReorder moves any flags (and their values) that appear after the positional
// arguments to the front so that flag.Parse() sees them. Go's flag package stops at
// the first non-flag argument, so `kotae ask "question" --output json` would otherwise
// leave --output unparsed.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// joinArgs joins positional args with spaces so multi-word input works with or without quotes.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func parseOutput(s string) cli.OutputFormat {
	format, err := cli.ParseOutputFormat(s)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return format
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (local mode)")
	serverURL := fs.String("server", defaultServerURL, `server URL (empty = answer locally from ingest.source_path)`)
	outputFormat := fs.String("output", "text", "output format: text or json")
	timeout := fs.Duration("timeout", 2*time.Minute, "request timeout")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	question := joinArgs(fs.Args())
	if question == "" {
		fmt.Fprintln(os.Stderr, "Usage: kotae ask [flags] <question>")
		os.Exit(1)
	}
	format := parseOutput(*outputFormat)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var resp *models.AskResponse
	if *serverURL != "" {
		r, err := cli.NewClient(*serverURL, 0).Ask(ctx, question)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
			os.Exit(1)
		}
		resp = r
	} else {
		r, err := askLocally(ctx, *configPath, question)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
			os.Exit(1)
		}
		resp = r
	}
	if err := cli.WriteAnswer(os.Stdout, resp, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// askLocally builds the components in-process, pre-ingests the configured source and answers once.
func askLocally(ctx context.Context, configPath, question string) (*models.AskResponse, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(cfg, false)
	defer logger.Sync()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer components.Close()
	preIngest(ctx, cfg, components, logger)

	ans, err := components.RAG.Answer(ctx, question)
	if err != nil {
		return nil, err
	}
	return &models.AskResponse{Answer: ans.Answer, Context: ans.Context}, nil
}

// remoteIngester posts passages to a running server so the local chunker can feed it.
type remoteIngester struct {
	client *cli.Client
}

func (r remoteIngester) IngestFrom(ctx context.Context, _ string, text string) (int, error) {
	if _, err := r.client.Ingest(ctx, text); err != nil {
		return -1, err
	}
	return 0, nil
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (chunking settings)")
	serverURL := fs.String("server", defaultServerURL, "server URL")
	file := fs.String("file", "", "bulk source file to chunk and ingest passage by passage")
	dryRun := fs.Bool("dry-run", false, "with --file: print the passages instead of posting them")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if *file != "" && *dryRun {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		chunker := ingest.NewChunker(cfg.Ingest.SectionDelimiter, cfg.Ingest.MinSectionLength, cfg.Ingest.EntryCodes)
		if _, err := previewFile(os.Stdout, chunker, extract.NewExtractor(), *file); err != nil {
			fmt.Fprintf(os.Stderr, "Preview failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *serverURL == "" {
		fmt.Fprintln(os.Stderr, "ingest needs a running server: the store lives in the server process")
		os.Exit(1)
	}
	client := cli.NewClient(*serverURL, 0)
	ctx := context.Background()

	if *file != "" {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		chunker := ingest.NewChunker(cfg.Ingest.SectionDelimiter, cfg.Ingest.MinSectionLength, cfg.Ingest.EntryCodes)
		loader := ingest.NewLoader(remoteIngester{client: client}, chunker, extract.NewExtractor())
		n, err := loader.LoadFile(ctx, *file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ingest failed after %d passages: %v\n", n, err)
			os.Exit(1)
		}
		fmt.Printf("Ingested %d passages from %s\n", n, *file)
		return
	}

	text := joinArgs(fs.Args())
	if text == "" {
		fmt.Fprintln(os.Stderr, "Usage: kotae ingest [flags] <text> | --file <path>")
		os.Exit(1)
	}
	resp, err := client.Ingest(ctx, text)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Passage %s: %s\n", resp.Status, utils.Truncate(utils.CollapseSpace(resp.Text), 80))
}

// previewFile prints the passages path would be split into, one block per passage.
func previewFile(w io.Writer, chunker *ingest.Chunker, extractor *extract.Extractor, path string) (int, error) {
	text, err := extractor.Extract(path)
	if err != nil {
		return 0, err
	}
	passages := chunker.Texts(text)
	for i, p := range passages {
		if _, err := fmt.Fprintf(w, "--- passage %d\n%s\n", i, p); err != nil {
			return i, err
		}
	}
	_, err = fmt.Fprintf(w, "%d passages\n", len(passages))
	return len(passages), err
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := parseOutput(*outputFormat)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	status, err := cli.NewClient(*serverURL, 0).Status(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runWatch() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: kotae watch <add|remove|list> [flags]")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	noSync := fs.Bool("no-sync", false, "add: do not load the files already in the directory")
	outputFormat := fs.String("output", "text", "list: output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[3:]))

	client := cli.NewClient(*serverURL, 30*time.Second)
	ctx := context.Background()

	switch sub {
	case "add":
		path := joinArgs(fs.Args())
		if path == "" {
			fmt.Println("Usage: kotae watch add <path>")
			os.Exit(1)
		}
		if err := client.AddWatchDirectory(ctx, path, !*noSync); err != nil {
			fmt.Printf("Add failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Watching: %s\n", path)
	case "remove":
		path := joinArgs(fs.Args())
		if path == "" {
			fmt.Println("Usage: kotae watch remove <path>")
			os.Exit(1)
		}
		if err := client.RemoveWatchDirectory(ctx, path); err != nil {
			fmt.Printf("Remove failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Stopped watching: %s\n", path)
	case "list":
		dirs, err := client.WatchDirectories(ctx)
		if err != nil {
			fmt.Printf("List failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteDirectories(os.Stdout, dirs, parseOutput(*outputFormat)); err != nil {
			os.Exit(1)
		}
	default:
		fmt.Printf("Unknown watch command: %s\n", sub)
		os.Exit(1)
	}
}

// Components holds initialized services.
type Components struct {
	Embedder  embedding.Embedder
	Store     *vector.Store
	Generator generation.Generator
	Journal   *storage.SQLiteJournal
	RAG       *rag.Service
	Loader    *ingest.Loader
}

func (c *Components) Close() {
	if c.Journal != nil {
		_ = c.Journal.Close()
	}
	if c.Generator != nil {
		_ = c.Generator.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	embedder, err := embedding.New(cfg.Embedding.Provider, embedding.ONNXConfig{
		ModelPath:   cfg.Embedding.ModelPath,
		VocabPath:   cfg.Embedding.VocabPath,
		LibraryPath: cfg.Embedding.LibraryPath,
		Dimensions:  cfg.Embedding.Dimensions,
		MaxTokens:   cfg.Embedding.MaxTokens,
		CacheSize:   cfg.Embedding.CacheSize,
		OutputName:  cfg.Embedding.OutputName,
		Pooling:     embedding.Pooling(cfg.Embedding.Pooling),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.Embedder = embedder

	idx, err := vector.NewIndex(cfg.Vector.IndexType, embedder.Dimensions())
	if err != nil {
		// Fall back to memory index if configured type fails (e.g., FAISS not available)
		if cfg.Vector.IndexType == string(vector.IndexTypeMemory) {
			return nil, fmt.Errorf("failed to initialize vector index: %w", err)
		}
		logger.Warn("failed to create vector index, falling back to memory",
			zap.String("requested_type", cfg.Vector.IndexType),
			zap.Error(err))
		idx, err = vector.NewIndex(string(vector.IndexTypeMemory), embedder.Dimensions())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vector index: %w", err)
		}
	}
	store, err := vector.NewStore(idx)
	if err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	c.Store = store
	logger.Info("vector store initialized",
		zap.String("type", store.Type()),
		zap.Int("dimensions", store.Dimensions()),
		zap.Bool("faiss_available", vector.IsFAISSAvailable()))

	gen, err := generation.New(ctx, &cfg.Generation, logger)
	if err != nil {
		return nil, err
	}
	c.Generator = gen

	ragOpts := []rag.Option{
		rag.WithLogger(logger),
		rag.WithOptions(generation.OptionsFrom(&cfg.Generation)),
		rag.WithCleaner(rag.NewCleaner(cfg.Generation.StripTokens...)),
	}
	if cfg.Storage.JournalPath != "" {
		journal, err := storage.NewSQLiteJournal(cfg.Storage.JournalPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		c.Journal = journal
		ragOpts = append(ragOpts, rag.WithJournal(journal))
		logger.Info("journal enabled", zap.String("path", cfg.Storage.JournalPath))
	}

	svc, err := rag.NewService(store, embedder, gen, ragOpts...)
	if err != nil {
		return nil, err
	}
	c.RAG = svc

	chunker := ingest.NewChunker(cfg.Ingest.SectionDelimiter, cfg.Ingest.MinSectionLength, cfg.Ingest.EntryCodes)
	c.Loader = ingest.NewLoader(svc, chunker, extract.NewExtractor(), ingest.WithLogger(logger))

	ok = true
	return c, nil
}

func printUsage() {
	fmt.Println(`kotae - Retrieval-augmented question answering server

Usage:
  kotae server [flags]            Start the HTTP server
  kotae ask [flags] <question>    Ask a question
  kotae ingest [flags] <text>     Add one passage (or --file to bulk ingest)
  kotae status [flags]            Show store, provider and journal status
  kotae watch <add|remove|list>   Manage watched inbox directories
  kotae version                   Show version
  kotae help                      Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kotae/config.yaml)
  --debug            Enable debug logging

Ask Flags:
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") to answer locally.
  --config string    Config file path (local mode)
  --output string    Output format: text or json (default: text)
  --timeout duration Request timeout (default: 2m)

Ingest Flags:
  --server string    Server URL (default: http://localhost:8080)
  --file string      Bulk source file, chunked locally and posted passage by passage
  --config string    Config file path (chunking settings for --file)
  --dry-run          With --file, print the passages without a server

Status Flags:
  --server string    Server URL (default: http://localhost:8080)
  --output string    Output format: text or json (default: text)

Watch Flags:
  --server string    Server URL (default: http://localhost:8080)
  --no-sync          add: skip files already in the directory
  --output string    list: output format: text or json

Examples:
  kotae server
  kotae ask "Qual a carga horária de Introdução à Lógica?"
  kotae ask --output json what is IAL101
  kotae ingest "IAL101 Introdução à Lógica, 60 horas"
  kotae ingest --file disciplinas.txt
  kotae status --output json
  kotae watch add /path/to/inbox
  kotae watch list`)
}
