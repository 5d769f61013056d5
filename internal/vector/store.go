package vector

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyperjump/kotae/pkg/utils"
)

// Passage is one indexed unit of text. ID is its insertion ordinal.
type Passage struct {
	ID        int
	Text      string
	Embedding []float32
}

// Match is the result of a top-1 search.
type Match struct {
	ID    int
	Text  string
	Score float64
}

// Store keeps passage texts alongside an Index. One RWMutex covers both, so a
// reader never sees a text without its vector or a vector without its text.
type Store struct {
	index Index
	texts []string
	mu    sync.RWMutex
}

// NewStore wraps idx, which must be empty.
func NewStore(idx Index) (*Store, error) {
	if idx == nil {
		return nil, fmt.Errorf("index is required")
	}
	if n := idx.Size(); n != 0 {
		return nil, fmt.Errorf("index must be empty, has %d vectors", n)
	}
	return &Store{index: idx, texts: make([]string, 0)}, nil
}

// NewMemoryStore creates a Store over a fresh MemoryIndex.
func NewMemoryStore(dimensions int) (*Store, error) {
	idx, err := NewMemoryIndex(dimensions)
	if err != nil {
		return nil, err
	}
	return NewStore(idx)
}

// Add stores text with a unit-length copy of embedding and returns the passage id.
// Empty and repeated texts are accepted and always get a new id. An all-zero embedding
// has no direction and is rejected with ErrZeroVector.
func (s *Store) Add(ctx context.Context, text string, embedding []float32) (int, error) {
	if len(embedding) != s.index.Dimensions() {
		return 0, fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(embedding), s.index.Dimensions())
	}
	if utils.Dot(embedding, embedding) == 0 {
		return 0, fmt.Errorf("%w: embedding of %d components has norm 0", ErrZeroVector, len(embedding))
	}
	vec := utils.Normalized(embedding)

	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.index.Add(ctx, vec)
	if err != nil {
		return 0, fmt.Errorf("add to index: %w", err)
	}
	if id != len(s.texts) {
		return 0, fmt.Errorf("index assigned id %d, expected %d", id, len(s.texts))
	}
	s.texts = append(s.texts, text)
	return id, nil
}

// Search returns the passage with the highest inner product against a unit-length copy
// of query, or nil when the store is empty. Score is therefore the cosine similarity.
// Ties resolve to the smallest id.
func (s *Store) Search(ctx context.Context, query []float32) (*Match, error) {
	if len(query) != s.index.Dimensions() {
		return nil, fmt.Errorf("query %w: got %d, expected %d", ErrDimensionMismatch, len(query), s.index.Dimensions())
	}
	query = utils.Normalized(query)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.texts) == 0 {
		return nil, nil
	}
	hit, err := s.index.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	if hit == nil || hit.ID < 0 || hit.ID >= len(s.texts) {
		return nil, nil
	}
	return &Match{ID: hit.ID, Text: s.texts[hit.ID], Score: hit.Score}, nil
}

// Passage returns the passage stored under id.
func (s *Store) Passage(id int) (Passage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id < 0 || id >= len(s.texts) {
		return Passage{}, false
	}
	vec, ok := s.index.Vector(id)
	if !ok {
		return Passage{}, false
	}
	return Passage{ID: id, Text: s.texts[id], Embedding: vec}, true
}

// Len returns the number of stored passages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.texts)
}

// Dimensions returns the embedding length the store accepts.
func (s *Store) Dimensions() int {
	return s.index.Dimensions()
}

// Type returns the underlying index type.
func (s *Store) Type() string {
	return s.index.Type()
}

// Close releases the underlying index.
func (s *Store) Close() error {
	return s.index.Close()
}
