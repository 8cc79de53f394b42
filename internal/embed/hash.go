package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
)

// Hash is a deterministic offline embedder: each whitespace token is
// hashed into a handful of vector components, and the result is
// L2-normalized. It gives stable, keyword-level similarity without any
// network dependency, which is enough for local indexing and tests.
type Hash struct{}

func NewHash() *Hash { return &Hash{} }

func (h *Hash) Embed(_ context.Context, text string) ([]float32, error) {
	vec := ZeroVector()
	if blank(text) {
		return vec, nil
	}

	for _, token := range strings.Fields(strings.ToLower(text)) {
		sum := sha256.Sum256([]byte(token))
		for i := 0; i < 4; i++ {
			idx := binary.LittleEndian.Uint32(sum[i*8:]) % Dim
			sign := float32(1)
			if sum[i*8+4]&1 == 1 {
				sign = -1
			}
			vec[idx] += sign
		}
	}

	var norm float64
	for _, x := range vec {
		norm += float64(x) * float64(x)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}
