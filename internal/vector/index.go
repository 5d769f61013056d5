// Package vector provides the passage store and the top-1 inner-product indexes behind it.
package vector

import (
	"context"
	"errors"
)

// ErrDimensionMismatch is returned when a vector length differs from the index dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// ErrZeroVector is returned when an embedding has zero length and cannot be normalized.
var ErrZeroVector = errors.New("zero vector")

// Index stores vectors under ordinal ids (0, 1, 2, ... in insertion order) and answers
// top-1 inner-product queries. Ties on the maximum score resolve to the smallest id.
type Index interface {
	Add(ctx context.Context, vec []float32) (int, error)
	Search(ctx context.Context, query []float32) (*Hit, error)
	Vector(id int) ([]float32, bool)
	Size() int
	Dimensions() int
	Type() string
	Close() error
}

// Hit is the best match of a search. Score is the inner product (cosine for unit vectors).
type Hit struct {
	ID    int
	Score float64
}
