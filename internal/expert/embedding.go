package expert

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const DefaultEmbeddingDim = 256

type EmbeddingService interface {
	Generate(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// HashEmbedder produces bag-of-words feature-hashed vectors. Tokens and
// adjacent token pairs are hashed into a fixed number of buckets with a
// signed hash, then L2 normalized so cosine distance ranks overlap.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultEmbeddingDim
	}
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) Dimensions() int {
	return h.dim
}

func (h *HashEmbedder) Generate(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dim)
	tokens := tokenize(text)

	for i, tok := range tokens {
		h.add(vec, tok, 1)
		if i > 0 {
			h.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec, nil
}

func (h *HashEmbedder) add(vec []float32, token string, weight float32) {
	f := fnv.New64a()
	f.Write([]byte(token))
	sum := f.Sum64()
	idx := int(sum % uint64(h.dim))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+' && r != '#'
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 1 {
			out = append(out, f)
		}
	}
	return out
}
