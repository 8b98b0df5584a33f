// Package embedding turns text into vectors.
//
// HashEncoder is a deterministic stand-in for an embedding model: vectors are
// derived only from a digest of the text, so identical input always yields a
// bit-identical unit vector. It exists for reproducible pipeline runs and has
// no semantic quality. Real providers plug in behind the same Encoder
// interface through a Router.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
)

// Encoder maps texts to vectors for a named provider. The output has one
// vector per input text, in order.
type Encoder interface {
	Encode(ctx context.Context, texts []string, provider string) ([][]float32, error)
}

const DefaultDimensions = 768

var dimensions = map[string]int{
	"openai":                1536,
	"bedrock":               1024,
	"sentence_transformers": 384,
}

// Dimensions returns the vector length produced for provider.
func Dimensions(provider string) int {
	if d, ok := dimensions[provider]; ok {
		return d
	}
	return DefaultDimensions
}

// HashEncoder derives vectors from the SHA-256 hex digest of each text.
type HashEncoder struct{}

func (HashEncoder) Encode(ctx context.Context, texts []string, provider string) ([][]float32, error) {
	dim := Dimensions(provider)
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, HashVector(t, dim))
	}
	return out, nil
}

// HashVector expands the digest nibbles of text into dim components, each
// (nibble[i mod 64] + i) / (16 + dim) - 0.5, and L2-normalizes the result.
func HashVector(text string, dim int) []float32 {
	sum := sha256.Sum256([]byte(text))
	digest := hex.EncodeToString(sum[:])

	raw := make([]float64, dim)
	var norm float64
	for i := range raw {
		v := (float64(nibble(digest[i%len(digest)]))+float64(i))/float64(16+dim) - 0.5
		raw[i] = v
		norm += v * v
	}
	norm = math.Sqrt(norm)

	vec := make([]float32, dim)
	for i, v := range raw {
		if norm > 0 {
			v /= norm
		}
		vec[i] = float32(v)
	}
	return vec
}

// SizedEncoder is a HashEncoder with a fixed output length, used for
// registered models whose dimensionality is configured explicitly.
type SizedEncoder struct {
	Dim int
}

func (e SizedEncoder) Encode(ctx context.Context, texts []string, _ string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, HashVector(t, e.Dim))
	}
	return out, nil
}

func nibble(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	}
	return 0
}
