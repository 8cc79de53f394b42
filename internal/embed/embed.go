// Package embed generates fixed-dimension text embeddings for semantic
// code search. Vectors are 384 floats; empty or whitespace-only input
// always maps to the zero vector so callers can distinguish "no query"
// from a real one.
package embed

import (
	"context"
	"math"
	"strings"
)

// Dim is the embedding width every provider must produce.
const Dim = 384

// Embedder turns text into a Dim-wide vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ZeroVector returns the canonical all-zero embedding.
func ZeroVector() []float32 {
	return make([]float32, Dim)
}

// IsZero reports whether every component of v is zero.
func IsZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Cosine computes cosine similarity between two vectors of equal length.
// Either vector having zero magnitude yields 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func blank(text string) bool {
	return strings.TrimSpace(text) == ""
}
