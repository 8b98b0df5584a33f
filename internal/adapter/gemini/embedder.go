package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const DefaultModel = "gemini-embedding-001"

// ErrEmptyEmbedding is returned when the API answers without values.
var ErrEmptyEmbedding = errors.New("empty embedding received")

// Embedder encodes text with a Gemini embedding model. Each call is retried
// with exponential backoff.
type Embedder struct {
	client     *genai.Client
	model      string
	maxRetries uint64
	interval   time.Duration
}

type Option func(*Embedder)

// WithRetry sets the retry budget and the initial backoff interval.
func WithRetry(maxRetries uint64, initial time.Duration) Option {
	return func(e *Embedder) {
		e.maxRetries = maxRetries
		e.interval = initial
	}
}

func WithModel(model string) Option {
	return func(e *Embedder) { e.model = model }
}

func NewEmbedder(ctx context.Context, apiKey string, clientOpts []option.ClientOption, opts ...Option) (*Embedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key not configured")
	}
	client, err := genai.NewClient(ctx, append(clientOpts, option.WithAPIKey(apiKey))...)
	if err != nil {
		return nil, err
	}
	e := &Embedder{
		client:     client,
		model:      DefaultModel,
		maxRetries: 3,
		interval:   500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Embed returns the embedding of a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	slog.DebugContext(ctx, "embedding content", "model", e.model, "length", len(text))
	em := e.client.EmbeddingModel(e.model)

	var values []float32
	op := func() error {
		res, err := em.EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return err
		}
		if res.Embedding == nil || len(res.Embedding.Values) == 0 {
			return backoff.Permanent(ErrEmptyEmbedding)
		}
		values = res.Embedding.Values
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.interval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, e.maxRetries), ctx)

	notify := func(err error, wait time.Duration) {
		slog.WarnContext(ctx, "embedding failed, retrying", "error", err, "wait", wait)
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		slog.ErrorContext(ctx, "embedding failed", "error", err)
		return nil, err
	}
	return values, nil
}

// Encode satisfies embedding.Encoder. The provider name is ignored; the
// vector length is whatever the model returns.
func (e *Embedder) Encode(ctx context.Context, texts []string, _ string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i, t := range texts {
		vec, err := e.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		out = append(out, vec)
	}
	return out, nil
}

func (e *Embedder) Close() error {
	return e.client.Close()
}
