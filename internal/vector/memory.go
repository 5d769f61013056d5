package vector

import (
	"context"
	"fmt"
	"sync"
)

// MemoryIndex is an in-memory index using an exhaustive inner-product scan.
type MemoryIndex struct {
	dimensions int
	vectors    [][]float32
	mu         sync.RWMutex
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		vectors:    make([][]float32, 0),
	}, nil
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// Dimensions returns the vector length accepted by the index.
func (m *MemoryIndex) Dimensions() int {
	return m.dimensions
}

// Add appends a copy of vec and returns its ordinal id.
func (m *MemoryIndex) Add(ctx context.Context, vec []float32) (int, error) {
	if len(vec) != m.dimensions {
		return 0, fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vec), m.dimensions)
	}
	stored := make([]float32, m.dimensions)
	copy(stored, vec)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors = append(m.vectors, stored)
	return len(m.vectors) - 1, nil
}

// Search scans every vector in id order and keeps the first maximum, so ties go to the smallest id.
func (m *MemoryIndex) Search(ctx context.Context, query []float32) (*Hit, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query %w: got %d, expected %d", ErrDimensionMismatch, len(query), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.vectors) == 0 {
		return nil, nil
	}
	best := &Hit{ID: 0, Score: InnerProduct(query, m.vectors[0])}
	for i := 1; i < len(m.vectors); i++ {
		if s := InnerProduct(query, m.vectors[i]); s > best.Score {
			best.ID, best.Score = i, s
		}
	}
	return best, nil
}

// Vector returns a copy of the stored vector for id.
func (m *MemoryIndex) Vector(id int) ([]float32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id < 0 || id >= len(m.vectors) {
		return nil, false
	}
	out := make([]float32, m.dimensions)
	copy(out, m.vectors[id])
	return out, true
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors)
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
