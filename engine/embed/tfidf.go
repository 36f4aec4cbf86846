package embed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/WessleyAI/wessley-docsearch/engine/domain"
)

// TFIDF is a deterministic, dependency-free provider. It learns a vocabulary
// and smoothed IDF weights from the corpus and produces L2-normalised vectors
// whose dimension equals the vocabulary size.
type TFIDF struct {
	mu         sync.RWMutex
	vocabulary map[string]int
	terms      []string
	idf        []float64
	docs       int
}

var tokenPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)

// NewTFIDF creates an unfitted TF-IDF provider.
func NewTFIDF() *TFIDF {
	return &TFIDF{vocabulary: make(map[string]int)}
}

// Name returns the identifier of this provider.
func (e *TFIDF) Name() string { return "tfidf" }

// Dimension returns the vocabulary size, zero before Fit or Load.
func (e *TFIDF) Dimension() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.terms)
}

// Fit builds the vocabulary and IDF weights from corpus.
func (e *TFIDF) Fit(corpus []string) error {
	if len(corpus) == 0 {
		return fmt.Errorf("embed: tfidf: empty corpus: %w", domain.ErrEmbedding)
	}
	df := make(map[string]int)
	for _, text := range corpus {
		seen := make(map[string]struct{})
		for _, tok := range tokenize(text) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}
	if len(df) == 0 {
		return fmt.Errorf("embed: tfidf: no tokens in corpus: %w", domain.ErrEmbedding)
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	n := float64(len(corpus))
	idf := make([]float64, len(terms))
	for i, term := range terms {
		idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1.0
	}
	e.set(terms, idf, len(corpus))
	return nil
}

func (e *TFIDF) set(terms []string, idf []float64, docs int) {
	vocab := make(map[string]int, len(terms))
	for i, t := range terms {
		vocab[t] = i
	}
	e.mu.Lock()
	e.terms, e.idf, e.vocabulary, e.docs = terms, idf, vocab, docs
	e.mu.Unlock()
}

// Embed computes TF-IDF vectors for texts.
func (e *TFIDF) Embed(_ context.Context, texts []string) ([]domain.Vector, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("embed: tfidf: no texts: %w", domain.ErrEmbedding)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.terms) == 0 {
		return nil, fmt.Errorf("embed: tfidf: not fitted: %w", domain.ErrEmbedding)
	}
	out := make([]domain.Vector, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

// vector must be called with mu held.
func (e *TFIDF) vector(text string) domain.Vector {
	vec := make([]float64, len(e.terms))
	tf := make(map[int]int)
	total := 0
	for _, tok := range tokenize(text) {
		if idx, ok := e.vocabulary[tok]; ok {
			tf[idx]++
			total++
		}
	}
	out := make(domain.Vector, len(e.terms))
	if total == 0 {
		return out
	}
	var norm float64
	for idx, count := range tf {
		v := float64(count) / float64(total) * e.idf[idx]
		vec[idx] = v
		norm += v * v
	}
	norm = math.Sqrt(norm)
	for idx := range tf {
		out[idx] = float32(vec[idx] / norm)
	}
	return out
}

type tfidfState struct {
	Documents int       `json:"documents"`
	Terms     []string  `json:"terms"`
	IDF       []float64 `json:"idf"`
}

// Save writes the fitted vocabulary to path as JSON.
func (e *TFIDF) Save(path string) error {
	e.mu.RLock()
	st := tfidfState{Documents: e.docs, Terms: e.terms, IDF: e.idf}
	e.mu.RUnlock()
	if len(st.Terms) == 0 {
		return fmt.Errorf("embed: tfidf: save unfitted vocabulary: %w", domain.ErrEmbedding)
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("embed: tfidf: encode vocabulary: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("embed: tfidf: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("embed: tfidf: write %s: %w", path, err)
	}
	return nil
}

// Load restores a vocabulary written by Save.
func (e *TFIDF) Load(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("embed: tfidf: vocabulary %s: %w", path, domain.ErrMissingFile)
	}
	if err != nil {
		return fmt.Errorf("embed: tfidf: read %s: %w", path, err)
	}
	var st tfidfState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("embed: tfidf: decode %s: %v: %w", path, err, domain.ErrMalformedInput)
	}
	if len(st.Terms) == 0 || len(st.Terms) != len(st.IDF) {
		return fmt.Errorf("embed: tfidf: %s has %d terms and %d weights: %w", path, len(st.Terms), len(st.IDF), domain.ErrMalformedInput)
	}
	e.set(st.Terms, st.IDF, st.Documents)
	return nil
}

func tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, stop := stopwords[t]; stop {
			continue
		}
		out = append(out, t)
	}
	return out
}

var stopwords = func() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by",
		"with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those",
		"from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about",
		"between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too",
		"very", "can", "will", "just", "don", "should", "now", "i", "need",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()
