// Package embedding abstracts the embedding capability behind a narrow
// provider interface. The default provider is deterministic and local, so a
// pipeline run never depends on a second remote service just to build the
// semantic section index.
package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Provider produces a fixed-dimension vector for a text.
type Provider interface {
	Dims() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// LocalProvider is a hashed bag-of-words embedder. Vectors are a pure
// function of the input text, so re-runs produce identical embeddings.
type LocalProvider struct {
	dims int
}

// NewLocalProvider builds a provider with the given dimensionality.
func NewLocalProvider(dims int) *LocalProvider {
	if dims <= 0 {
		dims = 256
	}
	return &LocalProvider{dims: dims}
}

// Dims returns the vector dimensionality.
func (p *LocalProvider) Dims() int {
	return p.dims
}

// Embed hashes each token into a bucket and L2-normalizes the result.
func (p *LocalProvider) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, p.dims)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		token = strings.Trim(token, ".,;:()[]\"'")
		if len(token) < 3 {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[int(h.Sum32())%p.dims]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}
