// Package retrieval provides semantic search over a small document corpus.
//
// An Index embeds documents with an Embedder and ranks them by cosine
// similarity against an embedded query. The openai package provides a hosted
// Embedder; HashEmbedder works offline.
package retrieval

import (
	"context"
	"errors"
)

var (
	ErrEmptyQuery        = errors.New("query is empty")
	ErrDimensionMismatch = errors.New("embedding dimensions do not match")
)

// Document is a searchable unit of text.
type Document struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Hit is a search result. Score is the cosine similarity in [-1, 1].
type Hit struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}

// Filter restricts results to documents whose metadata has every listed
// key with the given value.
type Filter map[string]string

func (f Filter) matches(doc Document) bool {
	for k, v := range f {
		if doc.Metadata[k] != v {
			return false
		}
	}
	return true
}

// Embedder turns texts into vectors, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Searcher returns up to k documents most similar to query.
type Searcher interface {
	Search(ctx context.Context, query string, k int, filter Filter) ([]Hit, error)
}
