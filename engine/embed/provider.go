// Package embed defines the embedding provider contract used by the build and
// query pipelines, and the providers that implement it.
package embed

import (
	"context"
	"fmt"

	"github.com/WessleyAI/wessley-docsearch/engine/domain"
	"github.com/WessleyAI/wessley-docsearch/pkg/fn"
)

// EmbedBatchSize is the max texts per provider call.
const EmbedBatchSize = 100

// Provider maps texts to fixed-dimension vectors, one per text, in order.
type Provider interface {
	Name() string
	Embed(ctx context.Context, texts []string) ([]domain.Vector, error)
}

// Fitter is implemented by providers that must learn from the corpus before
// they can embed.
type Fitter interface {
	Fit(corpus []string) error
}

// Stateful is implemented by providers whose learned state must be stored next
// to the index so queries embed into the same space.
type Stateful interface {
	Save(path string) error
	Load(path string) error
}

// CheckShape verifies a provider response: one non-empty vector per text and
// a single shared dimension.
func CheckShape(texts []string, vectors []domain.Vector) error {
	if len(vectors) != len(texts) {
		return fmt.Errorf("embed: got %d vectors for %d texts: %w", len(vectors), len(texts), domain.ErrEmbedding)
	}
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	if dim == 0 {
		return fmt.Errorf("embed: zero-length vector: %w", domain.ErrEmbedding)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("embed: vector %d has dimension %d, want %d: %w", i, len(v), dim, domain.ErrEmbedding)
		}
	}
	return nil
}

type batched struct {
	Provider
	size int
}

// Batched splits calls into batches of at most size texts and validates the
// combined result. Empty input is rejected before any call is made.
func Batched(p Provider, size int) Provider {
	if size <= 0 {
		size = EmbedBatchSize
	}
	return &batched{Provider: p, size: size}
}

func (b *batched) Embed(ctx context.Context, texts []string) ([]domain.Vector, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("embed: no texts: %w", domain.ErrEmbedding)
	}
	out := make([]domain.Vector, 0, len(texts))
	for _, chunk := range fn.Chunk(texts, b.size) {
		vecs, err := b.Provider.Embed(ctx, chunk)
		if err != nil {
			return nil, err
		}
		if err := CheckShape(chunk, vecs); err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	if err := CheckShape(texts, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Unwrap returns the wrapped provider.
func (b *batched) Unwrap() Provider { return b.Provider }

// As walks wrapped providers looking for one that implements T.
func As[T any](p Provider) (T, bool) {
	for p != nil {
		if t, ok := p.(T); ok {
			return t, true
		}
		u, ok := p.(interface{ Unwrap() Provider })
		if !ok {
			break
		}
		p = u.Unwrap()
	}
	var zero T
	return zero, false
}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, p Provider, text string) (domain.Vector, error) {
	vecs, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if err := CheckShape([]string{text}, vecs); err != nil {
		return nil, err
	}
	return vecs[0], nil
}
