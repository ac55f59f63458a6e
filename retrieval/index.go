package retrieval

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
)

type indexed struct {
	doc    Document
	vector []float64
	norm   float64
}

// Index is an in-memory vector index. Safe for concurrent use.
type Index struct {
	embedder Embedder
	mu       sync.RWMutex
	docs     map[string]indexed
	dims     int
}

var _ Searcher = (*Index)(nil)

// NewIndex creates an empty index that embeds with embedder.
func NewIndex(embedder Embedder) *Index {
	return &Index{
		embedder: embedder,
		docs:     make(map[string]indexed),
	}
}

// Add embeds and stores documents. A document whose ID is already present
// replaces the earlier one. All vectors must share one dimension.
func (x *Index) Add(ctx context.Context, docs ...Document) error {
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		if d.ID == "" {
			return fmt.Errorf("document %d has no id", i)
		}
		texts[i] = d.Content
	}

	vectors, err := x.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	dims := x.dims
	for _, v := range vectors {
		if dims == 0 {
			dims = len(v)
		}
		if len(v) != dims {
			return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), dims)
		}
	}

	x.dims = dims
	for i, d := range docs {
		x.docs[d.ID] = indexed{doc: d, vector: vectors[i], norm: norm(vectors[i])}
	}
	return nil
}

// Delete removes a document; unknown IDs are ignored.
func (x *Index) Delete(id string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.docs, id)
}

// Len reports the number of stored documents.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.docs)
}

// Search ranks matching documents by similarity to query, best first. Ties
// are broken by document ID. k <= 0 returns every match.
func (x *Index) Search(ctx context.Context, query string, k int, filter Filter) ([]Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	vectors, err := x.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(vectors))
	}
	q := vectors[0]
	qn := norm(q)

	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.dims != 0 && len(q) != x.dims {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(q), x.dims)
	}

	hits := make([]Hit, 0, len(x.docs))
	for _, d := range x.docs {
		if !filter.matches(d.doc) {
			continue
		}
		hits = append(hits, Hit{Document: d.doc, Score: cosine(q, qn, d.vector, d.norm)})
	}

	slices.SortFunc(hits, func(a, b Hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return strings.Compare(a.Document.ID, b.Document.ID)
	})

	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

func cosine(a []float64, an float64, b []float64, bn float64) float64 {
	if an == 0 || bn == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot / (an * bn)
}
