package retrieval

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// HashEmbedder is a deterministic bag-of-words embedder using feature
// hashing. It needs no network access and is good enough for keyword-level
// similarity in tests and offline demos.
type HashEmbedder struct {
	Dims int
}

const defaultHashDims = 256

func (h HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dims := h.Dims
	if dims <= 0 {
		dims = defaultHashDims
	}

	out := make([][]float64, len(texts))
	for i, text := range texts {
		v := make([]float64, dims)
		for _, tok := range tokenize(text) {
			f := fnv.New32a()
			f.Write([]byte(tok))
			v[f.Sum32()%uint32(dims)]++
		}
		out[i] = v
	}
	return out, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
