package rag

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/generation"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type constEmbedder struct {
	vec []float32
	err error
}

func (c *constEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.err != nil {
		return nil, c.err
	}
	return append([]float32(nil), c.vec...), nil
}

type recordingGenerator struct {
	mu      sync.Mutex
	prompts []string
	opts    []generation.Options
	out     string
	err     error
}

func (r *recordingGenerator) Generate(ctx context.Context, prompt string, opts generation.Options) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts = append(r.prompts, prompt)
	r.opts = append(r.opts, opts)
	if r.err != nil {
		return "", r.err
	}
	return r.out, nil
}

type memJournal struct {
	mu         sync.Mutex
	ingestions []*storage.Ingestion
	answers    []*storage.AnswerRecord
	err        error
}

func (m *memJournal) RecordIngestion(ctx context.Context, rec *storage.Ingestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ingestions = append(m.ingestions, rec)
	return m.err
}

func (m *memJournal) RecordAnswer(ctx context.Context, rec *storage.AnswerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers = append(m.answers, rec)
	return m.err
}

func newService(t *testing.T, dims int, emb Embedder, gen Generator, opts ...Option) *Service {
	t.Helper()
	store, err := vector.NewMemoryStore(dims)
	require.NoError(t, err)
	s, err := NewService(store, emb, gen, opts...)
	require.NoError(t, err)
	return s
}

func TestService_AnswerFromSinglePassage(t *testing.T) {
	gen := &recordingGenerator{out: "<pad> A disciplina IAL101 trata de lógica.</s>"}
	s := newService(t, 3, &constEmbedder{vec: []float32{1, 1, 1}}, gen)
	ctx := context.Background()

	text := "IAL101\nIntrodução à Lógica"
	id, err := s.Ingest(ctx, text)
	require.NoError(t, err)
	assert.Equal(t, 0, id)

	ans, err := s.Answer(ctx, "O que é IAL101?")
	require.NoError(t, err)
	assert.Equal(t, text, ans.Context)
	assert.Equal(t, 0, ans.PassageID)
	assert.InDelta(t, 1.0, ans.Score, 1e-5)
	assert.Equal(t, "A disciplina IAL101 trata de lógica.", ans.Answer)

	require.Len(t, gen.prompts, 1)
	assert.Equal(t, BuildPrompt(text, "O que é IAL101?"), gen.prompts[0])
	assert.Equal(t, generation.DefaultOptions(), gen.opts[0])
}

func TestService_AnswerLogsCollapsedQuestion(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	s := newService(t, 3, &constEmbedder{vec: []float32{0, 1, 0}}, &recordingGenerator{out: "ok"}, WithLogger(zap.New(core)))

	_, err := s.Answer(context.Background(), "  O que é\n\n\tIAL101?  ")
	require.NoError(t, err)

	entries := logs.FilterMessage("question answered").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "O que é IAL101?", entries[0].ContextMap()["question"])
}

func TestService_EmptyStoreUsesFallbackContext(t *testing.T) {
	gen := &recordingGenerator{out: "I do not know."}
	s := newService(t, 3, &constEmbedder{vec: []float32{0, 1, 0}}, gen)

	ans, err := s.Answer(context.Background(), "anything?")
	require.NoError(t, err)
	assert.Equal(t, NoContext, ans.Context)
	assert.Equal(t, -1, ans.PassageID)
	assert.Zero(t, ans.Score)
	assert.Equal(t, "I do not know.", ans.Answer)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "Context:\n"+NoContext+"\n\nQuestion:\nanything?")
}

func TestService_SelfRetrieval(t *testing.T) {
	emb := embedding.NewMockEmbedder(64)
	gen := generation.NewEchoGenerator()
	s := newService(t, 64, emb, gen)
	ctx := context.Background()

	texts := []string{
		"=== Primeiro período\nIAL101 Introdução à Lógica",
		"ISO102 Sistemas Operacionais e redes de computadores",
		"IBD201 Banco de Dados relacionais",
		"MAT103 Cálculo diferencial",
	}
	for _, text := range texts {
		_, err := s.Ingest(ctx, text)
		require.NoError(t, err)
	}
	for i, text := range texts {
		ans, err := s.Answer(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, i, ans.PassageID, "text %q", text)
		assert.Equal(t, text, ans.Context)
	}
}

func TestService_EchoAnswerIsCleaned(t *testing.T) {
	s := newService(t, 3, &constEmbedder{vec: []float32{1, 0, 0}}, generation.NewEchoGenerator())
	ctx := context.Background()
	_, err := s.Ingest(ctx, "IBD201 Banco de Dados")
	require.NoError(t, err)

	ans, err := s.Answer(ctx, "?")
	require.NoError(t, err)
	assert.Equal(t, "IBD201 Banco de Dados", ans.Answer)
}

func TestService_RepeatedTextGetsNewIDs(t *testing.T) {
	s := newService(t, 2, &constEmbedder{vec: []float32{1, 0}}, &recordingGenerator{out: "x"})
	ctx := context.Background()
	for want := 0; want < 3; want++ {
		id, err := s.Ingest(ctx, "same")
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}
	assert.Equal(t, 3, s.Store().Len())

	ans, err := s.Answer(ctx, "same")
	require.NoError(t, err)
	assert.Equal(t, 0, ans.PassageID, "ties resolve to the smallest id")
}

func TestService_EmbedFailure(t *testing.T) {
	cause := errors.New("model not loaded")
	gen := &recordingGenerator{out: "x"}
	s := newService(t, 3, &constEmbedder{err: cause}, gen)

	_, err := s.Answer(context.Background(), "q")
	require.Error(t, err)
	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, OpEmbed, perr.Op)
	assert.ErrorIs(t, err, cause)
	assert.Empty(t, gen.prompts, "generator must not be called")

	id, err := s.Ingest(context.Background(), "text")
	assert.Equal(t, -1, id)
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, OpEmbed, perr.Op)
	assert.Zero(t, s.Store().Len())
}

func TestService_GenerateFailure(t *testing.T) {
	cause := errors.New("upstream 503")
	gen := &recordingGenerator{err: cause}
	s := newService(t, 3, &constEmbedder{vec: []float32{1, 0, 0}}, gen)

	ans, err := s.Answer(context.Background(), "q")
	assert.Nil(t, ans)
	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, OpGenerate, perr.Op)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "generate provider: upstream 503", err.Error())
	assert.Len(t, gen.prompts, 1, "failures are not retried")
}

func TestService_DimensionMismatch(t *testing.T) {
	s := newService(t, 3, &constEmbedder{vec: []float32{1, 0}}, &recordingGenerator{out: "x"})

	_, err := s.Ingest(context.Background(), "text")
	require.ErrorIs(t, err, vector.ErrDimensionMismatch)
	var perr *ProviderError
	assert.False(t, errors.As(err, &perr))

	_, err = s.Answer(context.Background(), "q")
	require.ErrorIs(t, err, vector.ErrDimensionMismatch)
}

func TestService_Options(t *testing.T) {
	gen := &recordingGenerator{out: "<|im_end|> ok [SEP]"}
	opts := generation.Options{MaxNewTokens: 32, Temperature: 0.2, TopP: 0.5}
	s := newService(t, 2, &constEmbedder{vec: []float32{1, 0}}, gen,
		WithOptions(opts),
		WithCleaner(NewCleaner("[SEP]")),
		WithLogger(nil),
	)

	ans, err := s.Answer(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "ok", ans.Answer)
	assert.Equal(t, opts, gen.opts[0])
}

func TestService_Journal(t *testing.T) {
	j := &memJournal{}
	s := newService(t, 2, &constEmbedder{vec: []float32{1, 0}}, &recordingGenerator{out: "answer"}, WithJournal(j))
	ctx := context.Background()

	_, err := s.Answer(ctx, "before")
	require.NoError(t, err)
	_, err = s.IngestFrom(ctx, "disciplinas.txt", "IAL101 Lógica")
	require.NoError(t, err)
	_, err = s.Answer(ctx, "after")
	require.NoError(t, err)

	require.Len(t, j.ingestions, 1)
	assert.Equal(t, "disciplinas.txt", j.ingestions[0].Source)
	assert.Equal(t, 0, j.ingestions[0].PassageID)

	require.Len(t, j.answers, 2)
	assert.Equal(t, -1, j.answers[0].PassageID)
	assert.Equal(t, NoContext, j.answers[0].Context)
	assert.Equal(t, 0, j.answers[1].PassageID)
	assert.Equal(t, "answer", j.answers[1].Answer)
}

func TestService_JournalFailureDoesNotFail(t *testing.T) {
	j := &memJournal{err: errors.New("disk full")}
	s := newService(t, 2, &constEmbedder{vec: []float32{1, 0}}, &recordingGenerator{out: "a"}, WithJournal(j))

	id, err := s.Ingest(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, 0, id)
	_, err = s.Answer(context.Background(), "q")
	require.NoError(t, err)
}

func TestService_ConcurrentIngestAndAnswer(t *testing.T) {
	emb := embedding.NewMockEmbedder(32)
	s := newService(t, 32, emb, generation.NewEchoGenerator())
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 200)
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				if _, err := s.Ingest(ctx, strings.Repeat("w", w+1)+" passage"); err != nil {
					errs <- err
				}
			}
		}(w)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				ans, err := s.Answer(ctx, "passage")
				if err != nil {
					errs <- err
					continue
				}
				if ans.PassageID >= 0 {
					if p, ok := s.Store().Passage(ans.PassageID); !ok || p.Text != ans.Context {
						errs <- errors.New("context does not match passage")
					}
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	assert.Equal(t, 100, s.Store().Len())
}

func TestNewService_RequiresDependencies(t *testing.T) {
	store, err := vector.NewMemoryStore(2)
	require.NoError(t, err)
	emb := &constEmbedder{vec: []float32{1, 0}}
	gen := &recordingGenerator{}

	_, err = NewService(nil, emb, gen)
	assert.Error(t, err)
	_, err = NewService(store, nil, gen)
	assert.Error(t, err)
	_, err = NewService(store, emb, nil)
	assert.Error(t, err)
}
