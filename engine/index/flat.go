// Package index is an exact nearest-neighbour index over embedding vectors.
// Position i in the index always refers to section i of the metadata store
// built in the same run.
package index

import (
	"fmt"
	"math"
	"slices"

	"github.com/WessleyAI/wessley-docsearch/engine/domain"
)

// Flat stores vectors contiguously and searches them by brute force.
type Flat struct {
	dim  int
	data []float32
}

// Build copies vectors into a new index. All vectors must share one dimension.
func Build(vectors []domain.Vector) (*Flat, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("index: build: %w", domain.ErrEmptyInput)
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("index: build: zero-dimension vector: %w", domain.ErrDimensionMismatch)
	}
	data := make([]float32, 0, dim*len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("index: build: vector %d has dimension %d, want %d: %w", i, len(v), dim, domain.ErrDimensionMismatch)
		}
		data = append(data, v...)
	}
	return &Flat{dim: dim, data: data}, nil
}

// Len returns the number of vectors.
func (f *Flat) Len() int { return len(f.data) / f.dim }

// Dim returns the vector dimension.
func (f *Flat) Dim() int { return f.dim }

// Vector returns a copy of the vector at position i.
func (f *Flat) Vector(i int) domain.Vector {
	return slices.Clone(f.row(i))
}

func (f *Flat) row(i int) []float32 {
	return f.data[i*f.dim : (i+1)*f.dim]
}

// Search returns up to k positions ordered by ascending Euclidean distance to
// query. Equal distances keep insertion order.
func (f *Flat) Search(query domain.Vector, k int) ([]domain.Hit, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("index: search: query dimension %d, index dimension %d: %w", len(query), f.dim, domain.ErrDimensionMismatch)
	}
	if k <= 0 {
		return []domain.Hit{}, nil
	}

	n := f.Len()
	hits := make([]domain.Hit, n)
	for i := 0; i < n; i++ {
		hits[i] = domain.Hit{Position: i, Distance: l2(query, f.row(i))}
	}
	slices.SortStableFunc(hits, func(a, b domain.Hit) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		default:
			return 0
		}
	})
	if k < n {
		hits = hits[:k]
	}
	return hits, nil
}

// l2 accumulates in float64 so results do not depend on summation width.
func l2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
