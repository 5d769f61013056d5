package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperjump/kotae/internal/extract"
	"go.uber.org/zap"
)

// ErrSourceNotFound is returned when the bulk-ingest source does not exist.
var ErrSourceNotFound = errors.New("ingest source not found")

// Ingester adds one passage and returns its id.
type Ingester interface {
	IngestFrom(ctx context.Context, source, text string) (int, error)
}

// Loader extracts, chunks and ingests source files.
type Loader struct {
	ingester  Ingester
	chunker   *Chunker
	extractor *extract.Extractor
	logger    *zap.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLogger sets a logger for load progress.
func WithLogger(l *zap.Logger) LoaderOption {
	return func(ld *Loader) {
		if l != nil {
			ld.logger = l
		}
	}
}

// NewLoader creates a loader. chunker and extractor may be nil to use the defaults.
func NewLoader(ingester Ingester, chunker *Chunker, extractor *extract.Extractor, opts ...LoaderOption) *Loader {
	if chunker == nil {
		chunker = NewChunker("", 0, nil)
	}
	if extractor == nil {
		extractor = extract.NewExtractor()
	}
	ld := &Loader{
		ingester:  ingester,
		chunker:   chunker,
		extractor: extractor,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(ld)
	}
	return ld
}

// Chunker returns the chunker used by the loader.
func (ld *Loader) Chunker() *Chunker {
	return ld.chunker
}

// LoadFile ingests every passage of the file at path in document order and returns how
// many were added. The first failing passage stops the load; the count so far is returned
// with the error.
func (ld *Loader) LoadFile(ctx context.Context, path string) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}
		return 0, fmt.Errorf("stat source: %w", err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("not a regular file: %s", path)
	}
	text, err := ld.extractor.Extract(path)
	if err != nil {
		return 0, fmt.Errorf("extract content: %w", err)
	}
	return ld.LoadText(ctx, filepath.Base(path), text)
}

// LoadText chunks text and ingests each passage with source recorded as its origin.
func (ld *Loader) LoadText(ctx context.Context, source, text string) (int, error) {
	start := time.Now()
	chunks := ld.chunker.Chunk(text)
	added := 0
	for _, ch := range chunks {
		if err := ctx.Err(); err != nil {
			return added, err
		}
		if _, err := ld.ingester.IngestFrom(ctx, source, ch.Text); err != nil {
			return added, fmt.Errorf("ingest %s passage %d: %w", ch.Kind, added, err)
		}
		added++
	}
	ld.logger.Info("source loaded",
		zap.String("source", source),
		zap.Int("passages", added),
		zap.Duration("took", time.Since(start)),
	)
	return added, nil
}
