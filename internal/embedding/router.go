package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Router dispatches each Encode call to the encoder registered for the
// provider and falls back to a default encoder for everything else.
type Router struct {
	mu        sync.RWMutex
	fallback  Encoder
	providers map[string]Encoder
}

// NewRouter returns a router whose fallback is fallback, or HashEncoder when nil.
func NewRouter(fallback Encoder) *Router {
	if fallback == nil {
		fallback = HashEncoder{}
	}
	return &Router{fallback: fallback, providers: make(map[string]Encoder)}
}

// Register serves provider with enc.
func (r *Router) Register(provider string, enc Encoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider] = enc
}

// Lookup returns the encoder registered for provider.
func (r *Router) Lookup(provider string) (Encoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	enc, ok := r.providers[provider]
	return enc, ok
}

func (r *Router) Encode(ctx context.Context, texts []string, provider string) ([][]float32, error) {
	r.mu.RLock()
	enc, ok := r.providers[provider]
	r.mu.RUnlock()
	if !ok {
		enc = r.fallback
	}

	vectors, err := enc.Encode(ctx, texts, provider)
	if err != nil {
		return nil, fmt.Errorf("encode with %s: %w", provider, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("encode with %s: got %d vectors for %d texts", provider, len(vectors), len(texts))
	}
	slog.DebugContext(ctx, "encoded texts", "provider", provider, "count", len(texts), "registered", ok)
	return vectors, nil
}
