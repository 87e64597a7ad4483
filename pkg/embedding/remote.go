package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// RemoteConfig configures the hosted embedding model.
type RemoteConfig struct {
	APIKey    string
	Model     string // e.g. "text-embedding-3-small" with dimensions=384
	BaseURL   string // optional OpenAI-compatible endpoint
	Dimension int
}

// RemoteEmbedder calls a hosted sentence-embedding model through
// langchaingo. The client is lazy-initialized on first use and the model
// handle is immutable afterwards, so it is safe for concurrent use.
//
// Responses are memoized per process run so that repeated embedding of
// the same text yields identical vectors even if the hosted model is
// nondeterministic at sampling boundaries.
type RemoteEmbedder struct {
	cfg RemoteConfig

	initOnce sync.Once
	initErr  error
	client   *embeddings.EmbedderImpl

	mu   sync.RWMutex
	memo map[string][]float32
}

// NewRemoteEmbedder creates a lazy remote embedder. No network calls are
// made until the first Embed.
func NewRemoteEmbedder(cfg RemoteConfig) *RemoteEmbedder {
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}
	return &RemoteEmbedder{
		cfg:  cfg,
		memo: make(map[string][]float32),
	}
}

// Dimension returns the configured vector dimensionality.
func (e *RemoteEmbedder) Dimension() int { return e.cfg.Dimension }

func (e *RemoteEmbedder) init() error {
	e.initOnce.Do(func() {
		opts := []openai.Option{
			openai.WithToken(e.cfg.APIKey),
			openai.WithEmbeddingModel(e.cfg.Model),
		}
		if e.cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(e.cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			e.initErr = fmt.Errorf("creating embedding client: %w", err)
			return
		}
		client, err := embeddings.NewEmbedder(llm, embeddings.WithStripNewLines(true))
		if err != nil {
			e.initErr = fmt.Errorf("creating embedder: %w", err)
			return
		}
		e.client = client
		slog.Info("Embedding client initialized", "model", e.cfg.Model, "dimension", e.cfg.Dimension)
	})
	return e.initErr
}

// Embed returns the unit vector for text.
func (e *RemoteEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := e.lookup(text); ok {
		return vec, nil
	}
	if err := e.init(); err != nil {
		return nil, err
	}
	vec, err := e.client.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	vec = Normalize(vec)
	e.store(text, vec)
	return vec, nil
}

// EmbedBatch returns unit vectors for texts, in order. Already-memoized
// texts are served from memory; only the remainder hits the model.
func (e *RemoteEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, t := range texts {
		if vec, ok := e.lookup(t); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}
	if err := e.init(); err != nil {
		return nil, err
	}
	vecs, err := e.client.EmbedDocuments(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("embedding batch of %d: %w", len(missing), err)
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("embedding batch returned %d vectors for %d texts", len(vecs), len(missing))
	}
	for j, vec := range vecs {
		vec = Normalize(vec)
		e.store(missing[j], vec)
		out[missingIdx[j]] = vec
	}
	return out, nil
}

func (e *RemoteEmbedder) lookup(text string) ([]float32, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	vec, ok := e.memo[text]
	return vec, ok
}

func (e *RemoteEmbedder) store(text string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	// Bound the memo so long-running processes do not grow without limit.
	if len(e.memo) >= 65536 {
		for k := range e.memo {
			delete(e.memo, k)
			break
		}
	}
	e.memo[text] = vec
}
