// Package rag answers questions from the single most similar ingested passage.
package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/kotae/internal/generation"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

// SourceAPI is the journal source recorded for passages ingested by Ingest.
const SourceAPI = "api"

// Embedder is the embedding provider used by Service.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator is the generation provider used by Service.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts generation.Options) (string, error)
}

// JournalWriter receives a record of every ingestion and answer.
type JournalWriter interface {
	RecordIngestion(ctx context.Context, rec *storage.Ingestion) error
	RecordAnswer(ctx context.Context, rec *storage.AnswerRecord) error
}

// Answer is the result of one question. PassageID is -1 and Score is 0 when the
// store was empty and Context is NoContext.
type Answer struct {
	Answer    string
	Context   string
	PassageID int
	Score     float64
}

// Service owns the store and the providers. It is safe for concurrent use.
type Service struct {
	store     *vector.Store
	embedder  Embedder
	generator Generator
	opts      generation.Options
	cleaner   *Cleaner
	journal   JournalWriter
	logger    *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = utils.OrNop(l) }
}

// WithOptions sets the sampling options sent with every prompt.
func WithOptions(opts generation.Options) Option {
	return func(s *Service) { s.opts = opts }
}

// WithCleaner replaces the default output cleaner.
func WithCleaner(c *Cleaner) Option {
	return func(s *Service) {
		if c != nil {
			s.cleaner = c
		}
	}
}

// WithJournal records ingestions and answers in j. Write failures are logged only.
func WithJournal(j JournalWriter) Option {
	return func(s *Service) { s.journal = j }
}

// NewService builds a Service over store, embedder and generator.
func NewService(store *vector.Store, embedder Embedder, generator Generator, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	s := &Service{
		store:     store,
		embedder:  embedder,
		generator: generator,
		opts:      generation.DefaultOptions(),
		cleaner:   NewCleaner(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Store returns the underlying vector store.
func (s *Service) Store() *vector.Store {
	return s.store
}

// Ingest embeds text and adds it to the store, returning the new passage id.
func (s *Service) Ingest(ctx context.Context, text string) (int, error) {
	return s.IngestFrom(ctx, SourceAPI, text)
}

// IngestFrom is Ingest with the origin of text recorded in the journal.
func (s *Service) IngestFrom(ctx context.Context, source, text string) (int, error) {
	emb, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return -1, &ProviderError{Op: OpEmbed, Err: err}
	}
	id, err := s.store.Add(ctx, text, emb)
	if err != nil {
		return -1, fmt.Errorf("add passage: %w", err)
	}
	s.logger.Debug("passage added",
		zap.Int("passage_id", id),
		zap.String("source", source),
		zap.Int("runes", len([]rune(text))),
	)
	if s.journal != nil {
		rec := &storage.Ingestion{PassageID: id, Source: source, Text: text}
		if err := s.journal.RecordIngestion(ctx, rec); err != nil {
			s.logger.Warn("journal ingestion failed", zap.Int("passage_id", id), zap.Error(err))
		}
	}
	return id, nil
}

// Answer retrieves the most similar passage for question and generates an answer from it.
// An empty store is not an error: the prompt then carries NoContext.
func (s *Service) Answer(ctx context.Context, question string) (*Answer, error) {
	start := time.Now()

	q, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, &ProviderError{Op: OpEmbed, Err: err}
	}

	match, err := s.store.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search passages: %w", err)
	}

	result := &Answer{Context: NoContext, PassageID: -1}
	if match != nil {
		result.Context = match.Text
		result.PassageID = match.ID
		result.Score = match.Score
	}

	raw, err := s.generator.Generate(ctx, BuildPrompt(result.Context, question), s.opts)
	if err != nil {
		return nil, &ProviderError{Op: OpGenerate, Err: err}
	}
	result.Answer = s.cleaner.Clean(raw)

	s.logger.Debug("question answered",
		zap.String("question", utils.Truncate(utils.CollapseSpace(question), 80)),
		zap.Int("passage_id", result.PassageID),
		zap.Float64("score", result.Score),
		zap.Duration("took", time.Since(start)),
	)

	if s.journal != nil {
		rec := &storage.AnswerRecord{
			Question:  question,
			Context:   result.Context,
			Answer:    result.Answer,
			PassageID: result.PassageID,
			Score:     result.Score,
		}
		if err := s.journal.RecordAnswer(ctx, rec); err != nil {
			s.logger.Warn("journal answer failed", zap.Error(err))
		}
	}
	return result, nil
}
