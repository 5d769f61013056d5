//go:build faiss && cgo
// +build faiss,cgo

package vector

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/IndexFlat_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"context"
	"fmt"
	"sync"
	"unsafe"
)

// initialTieWindow is the first k requested from FAISS. Search widens it while the
// last returned score still equals the best one, so ties are resolved over all candidates.
const initialTieWindow = 8

// FAISSIndex is a vector index backed by a FAISS IndexFlatIP (exact inner product).
// FAISS assigns sequential labels starting at 0, which are used directly as ordinal ids.
type FAISSIndex struct {
	index      *C.FaissIndexFlatIP
	dimensions int
	mu         sync.RWMutex
}

// NewFAISSIndex creates a FAISS index with the given dimension using inner product.
func NewFAISSIndex(dimensions int) (*FAISSIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}

	var index *C.FaissIndexFlatIP
	ret := C.faiss_IndexFlatIP_new_with(&index, C.idx_t(dimensions))
	if ret != 0 {
		return nil, fmt.Errorf("failed to create FAISS index: %s", faissLastError())
	}

	return &FAISSIndex{
		index:      index,
		dimensions: dimensions,
	}, nil
}

func faissLastError() string {
	cErr := C.faiss_get_last_error()
	if cErr == nil {
		return "unknown error"
	}
	return C.GoString(cErr)
}

// Add appends vec and returns the label FAISS assigned to it.
func (f *FAISSIndex) Add(ctx context.Context, vec []float32) (int, error) {
	if len(vec) != f.dimensions {
		return 0, fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vec), f.dimensions)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	id := int(C.faiss_Index_ntotal(f.index))
	ret := C.faiss_Index_add(f.index, 1, (*C.float)(unsafe.Pointer(&vec[0])))
	if ret != 0 {
		return 0, fmt.Errorf("failed to add vector to FAISS index: %s", faissLastError())
	}
	return id, nil
}

// Search returns the best inner-product match, picking the smallest label among equal scores.
func (f *FAISSIndex) Search(ctx context.Context, query []float32) (*Hit, error) {
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("query %w: got %d, expected %d", ErrDimensionMismatch, len(query), f.dimensions)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	ntotal := int(C.faiss_Index_ntotal(f.index))
	if ntotal == 0 {
		return nil, nil
	}

	k := initialTieWindow
	for {
		if k > ntotal {
			k = ntotal
		}
		distances := make([]float32, k)
		labels := make([]int64, k)
		ret := C.faiss_Index_search(
			f.index,
			1,
			(*C.float)(unsafe.Pointer(&query[0])),
			C.idx_t(k),
			(*C.float)(unsafe.Pointer(&distances[0])),
			(*C.idx_t)(unsafe.Pointer(&labels[0])),
		)
		if ret != 0 {
			return nil, fmt.Errorf("FAISS search failed: %s", faissLastError())
		}

		var best *Hit
		for i := 0; i < k; i++ {
			if labels[i] < 0 {
				continue
			}
			score := float64(distances[i])
			if best == nil || score > best.Score || (score == best.Score && int(labels[i]) < best.ID) {
				best = &Hit{ID: int(labels[i]), Score: score}
			}
		}
		if best == nil {
			return nil, nil
		}
		if k == ntotal || float64(distances[k-1]) < best.Score {
			return best, nil
		}
		k *= 2
	}
}

// Vector reconstructs the stored vector for id.
func (f *FAISSIndex) Vector(id int) ([]float32, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if id < 0 || id >= int(C.faiss_Index_ntotal(f.index)) {
		return nil, false
	}
	out := make([]float32, f.dimensions)
	ret := C.faiss_Index_reconstruct(f.index, C.idx_t(id), (*C.float)(unsafe.Pointer(&out[0])))
	if ret != 0 {
		return nil, false
	}
	return out, true
}

// Size returns the number of vectors in the index.
func (f *FAISSIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.index == nil {
		return 0
	}
	return int(C.faiss_Index_ntotal(f.index))
}

// Dimensions returns the vector length accepted by the index.
func (f *FAISSIndex) Dimensions() int {
	return f.dimensions
}

// Close frees the FAISS index resources.
func (f *FAISSIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.index != nil {
		C.faiss_Index_free(f.index)
		f.index = nil
	}
	return nil
}

// Type returns the index type identifier.
func (f *FAISSIndex) Type() string {
	return string(IndexTypeFAISS)
}
