package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// LocalEmbedder is a deterministic in-process embedder based on hashed
// token features. It needs no model download or network access, so it
// serves tests and offline development. Vectors are unit-length and
// stable for the life of the process (and across processes).
//
// Token unigrams and bigrams are hashed into the vector space with a
// sign taken from the feature hash, which keeps texts sharing vocabulary close in
// cosine space — enough structure for threshold and pipeline tests.
type LocalEmbedder struct {
	dim int
}

// NewLocalEmbedder creates a deterministic embedder of the given
// dimension (DefaultDimension if dim <= 0).
func NewLocalEmbedder(dim int) *LocalEmbedder {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &LocalEmbedder{dim: dim}
}

// Dimension returns the vector dimensionality.
func (e *LocalEmbedder) Dimension() int { return e.dim }

// Embed returns the unit vector for text.
func (e *LocalEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	tokens := tokenize(text)
	for i, tok := range tokens {
		e.add(vec, tok, 1.0)
		if i+1 < len(tokens) {
			e.add(vec, tok+" "+tokens[i+1], 0.5)
		}
	}
	return Normalize(vec), nil
}

// EmbedBatch returns unit vectors for texts, in order.
func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *LocalEmbedder) add(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dim))
	sign := float32(1)
	if (sum>>32)&1 == 1 {
		sign = -1
	}
	vec[idx] += sign * weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
