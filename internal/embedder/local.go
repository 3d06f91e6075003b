package embedder

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// LocalProvider embeds text offline with feature hashing: each identifier
// token and each adjacent token pair is hashed into one of LocalDimension
// buckets with a hash-derived sign. Vectors are L2-normalised, so texts
// sharing identifiers land close together under cosine similarity.
type LocalProvider struct {
	*provider
}

// NewLocalProvider creates an offline embedder
func NewLocalProvider(cache *Cache) *LocalProvider {
	p := &provider{
		name:      ProviderLocal,
		model:     DefaultLocalModel,
		dimension: LocalDimension,
		cache:     cache,
	}
	p.embed = func(ctx context.Context, texts []string, _ string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, text := range texts {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			out[i] = HashEmbedding(text, LocalDimension)
		}
		return out, nil
	}
	return &LocalProvider{provider: p}
}

// HashEmbedding returns the normalised feature-hashed vector for text
func HashEmbedding(text string, dim int) []float32 {
	vec := make([]float32, dim)
	tokens := tokenize(text)

	add := func(feature string, weight float32) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(feature))
		sum := h.Sum64()
		idx := int(sum % uint64(dim))
		if sum&(1<<63) != 0 {
			weight = -weight
		}
		vec[idx] += weight
	}

	for i, tok := range tokens {
		add(tok, 1)
		if i > 0 {
			add(tokens[i-1]+" "+tok, 0.5)
		}
	}
	return NormalizeVector(vec)
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) > 1 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val * val)
	}

	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}
