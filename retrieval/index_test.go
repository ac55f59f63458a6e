package retrieval_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/stepflow/retrieval"
	"github.com/tailored-agentic-units/stepflow/tools"
)

func corpus() []retrieval.Document {
	return []retrieval.Document{
		{ID: "go", Content: "Go channels and goroutines make concurrency simple", Metadata: map[string]string{"topic": "programming"}},
		{ID: "paris", Content: "Paris weather is mild in spring with light rain", Metadata: map[string]string{"topic": "travel"}},
		{ID: "rome", Content: "Rome in summer is hot and sunny", Metadata: map[string]string{"topic": "travel"}},
	}
}

func newIndex(t *testing.T) *retrieval.Index {
	t.Helper()
	idx := retrieval.NewIndex(retrieval.HashEmbedder{})
	require.NoError(t, idx.Add(context.Background(), corpus()...))
	return idx
}

func TestIndex_Search(t *testing.T) {
	idx := newIndex(t)
	assert.Equal(t, 3, idx.Len())

	hits, err := idx.Search(context.Background(), "goroutines and channels", 2, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "go", hits[0].Document.ID)
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
}

func TestIndex_Search_Filter(t *testing.T) {
	idx := newIndex(t)

	hits, err := idx.Search(context.Background(), "weather in Paris", 0, retrieval.Filter{"topic": "travel"})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "paris", hits[0].Document.ID)
	for _, h := range hits {
		assert.Equal(t, "travel", h.Document.Metadata["topic"])
	}
}

func TestIndex_Search_EmptyQuery(t *testing.T) {
	_, err := newIndex(t).Search(context.Background(), "  ", 1, nil)
	assert.ErrorIs(t, err, retrieval.ErrEmptyQuery)
}

func TestIndex_AddReplacesAndDeletes(t *testing.T) {
	idx := newIndex(t)

	require.NoError(t, idx.Add(context.Background(), retrieval.Document{ID: "go", Content: "Gophers like Go"}))
	assert.Equal(t, 3, idx.Len())

	hits, err := idx.Search(context.Background(), "gophers", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "Gophers like Go", hits[0].Document.Content)

	idx.Delete("go")
	idx.Delete("missing")
	assert.Equal(t, 2, idx.Len())
}

func TestIndex_Add_Errors(t *testing.T) {
	idx := retrieval.NewIndex(retrieval.HashEmbedder{Dims: 8})
	assert.Error(t, idx.Add(context.Background(), retrieval.Document{Content: "no id"}))

	require.NoError(t, idx.Add(context.Background(), retrieval.Document{ID: "a", Content: "alpha"}))

	failing := retrieval.NewIndex(embedFunc(func(context.Context, []string) ([][]float64, error) {
		return nil, errors.New("quota exceeded")
	}))
	assert.Error(t, failing.Add(context.Background(), retrieval.Document{ID: "c", Content: "gamma"}))
}

func TestIndex_DimensionMismatch(t *testing.T) {
	dims := 4
	idx := retrieval.NewIndex(embedFunc(func(_ context.Context, texts []string) ([][]float64, error) {
		out := make([][]float64, len(texts))
		for i := range texts {
			out[i] = make([]float64, dims)
			out[i][0] = 1
		}
		return out, nil
	}))

	require.NoError(t, idx.Add(context.Background(), retrieval.Document{ID: "a", Content: "a"}))

	dims = 5
	err := idx.Add(context.Background(), retrieval.Document{ID: "b", Content: "b"})
	assert.ErrorIs(t, err, retrieval.ErrDimensionMismatch)

	_, err = idx.Search(context.Background(), "query", 1, nil)
	assert.ErrorIs(t, err, retrieval.ErrDimensionMismatch)
}

func TestHashEmbedder(t *testing.T) {
	vecs, err := retrieval.HashEmbedder{Dims: 32}.Embed(context.Background(), []string{"Hello, hello world", ""})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Len(t, vecs[0], 32)

	var sum float64
	for _, v := range vecs[0] {
		sum += v
	}
	assert.Equal(t, 3.0, sum)

	for _, v := range vecs[1] {
		assert.Zero(t, v)
	}
}

func TestSearchTool(t *testing.T) {
	idx := newIndex(t)
	registry := tools.NewRegistry(nil)
	require.NoError(t, registry.Register(retrieval.SearchTool(idx, 1)))

	def := registry.List()[0]
	assert.Equal(t, retrieval.SearchToolName, def.Name)

	res, err := registry.Execute(context.Background(), retrieval.SearchToolName, json.RawMessage(`{"query":"Rome summer"}`))
	require.NoError(t, err)
	require.False(t, res.IsError)

	var hits []retrieval.Hit
	require.NoError(t, json.Unmarshal([]byte(res.Content), &hits))
	require.Len(t, hits, 1)
	assert.Equal(t, "rome", hits[0].Document.ID)

	res, err = registry.Execute(context.Background(), retrieval.SearchToolName, json.RawMessage(`{"query":""}`))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = registry.Execute(context.Background(), retrieval.SearchToolName, json.RawMessage(`{"question":"x"}`))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

type embedFunc func(ctx context.Context, texts []string) ([][]float64, error)

func (f embedFunc) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	return f(ctx, texts)
}
