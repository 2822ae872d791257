// Package vectorstore provides the vector-search capability used by the
// document search backend: embedding providers and a cosine-distance index.
package vectorstore

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"gonum.org/v1/gonum/floats"
)

// EmbeddingProvider is the interface for embedding providers.
type EmbeddingProvider interface {
	// Embed generates an embedding for text.
	Embed(ctx context.Context, text string) ([]float64, error)

	// Dimension returns the embedding dimension.
	Dimension() int
}

// DefaultHashingDimension is the vector size used when none is configured.
const DefaultHashingDimension = 1024

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "can": true, "do": true, "does": true, "for": true,
	"from": true, "how": true, "i": true, "in": true, "is": true, "it": true,
	"my": true, "of": true, "on": true, "or": true, "the": true, "to": true,
	"what": true, "when": true, "who": true, "with": true, "you": true,
}

// HashingEmbedder maps sublinear term frequencies into a fixed number of
// buckets. It needs no network access and is deterministic, so rankings are
// reproducible across runs.
type HashingEmbedder struct {
	dim int
}

// NewHashingEmbedder creates a feature-hashing embedder.
func NewHashingEmbedder(dim int) *HashingEmbedder {
	if dim <= 0 {
		dim = DefaultHashingDimension
	}
	return &HashingEmbedder{dim: dim}
}

// Dimension returns the embedding dimension.
func (h *HashingEmbedder) Dimension() int {
	return h.dim
}

// Embed returns the L2-normalised hashed 1+ln(tf) vector of text.
func (h *HashingEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, h.dim)
	for _, token := range Tokenize(text) {
		hasher := fnv.New32a()
		_, _ = hasher.Write([]byte(token))
		vec[hasher.Sum32()%uint32(h.dim)]++
	}
	for i, tf := range vec {
		if tf > 0 {
			vec[i] = 1 + math.Log(tf)
		}
	}
	if norm := floats.Norm(vec, 2); norm > 0 {
		floats.Scale(1/norm, vec)
	}
	return vec, nil
}

// Tokenize lowercases text, splits it on anything that is not a letter or
// digit, drops stop words, and strips a few common suffixes.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if !stopWords[f] {
			tokens = append(tokens, stem(f))
		}
	}
	return tokens
}

var suffixes = []string{"ication", "ation", "ing", "ed", "es", "s"}

func stem(word string) string {
	for _, suffix := range suffixes {
		if len(word)-len(suffix) >= 4 && strings.HasSuffix(word, suffix) {
			return word[:len(word)-len(suffix)]
		}
	}
	return word
}
