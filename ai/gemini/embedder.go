package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/generative-ai-go/genai"
	"github.com/poiesic/lectern/ai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// MaxBatchSize is the largest number of texts sent in one request.
const MaxBatchSize = 100

// DefaultModel is used when the configuration names no model.
const DefaultModel = "gemini-embedding-001"

// Embedder implements ai.Embedder on a Gemini embedding model.
type Embedder struct {
	model  *genai.EmbeddingModel
	name   string
	logger *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

// EmbedText embeds a single text.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	res, err := e.model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini: embed text: %w", classify(err))
	}
	if res.Embedding == nil {
		return nil, errors.New("gemini: empty embedding in response")
	}
	return res.Embedding.Values, nil
}

// EmbedTexts embeds texts in order, issuing one request per MaxBatchSize texts.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += MaxBatchSize {
		end := min(start+MaxBatchSize, len(texts))

		batch := e.model.NewBatch()
		for _, text := range texts[start:end] {
			batch.AddContent(genai.Text(text))
		}

		e.logger.Debug("embedding batch", "model", e.name, "count", end-start)
		res, err := e.model.BatchEmbedContents(ctx, batch)
		if err != nil {
			err = classify(err)
			e.logger.Error("batch embedding failed", "count", end-start, "transient", ai.IsTransient(err), "err", err)
			return nil, fmt.Errorf("gemini: embed %d texts: %w", end-start, err)
		}
		for _, emb := range res.Embeddings {
			out = append(out, emb.Values)
		}
	}
	return out, nil
}

// classify marks throttling and server side failures as transient.
func classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return ai.MarkTransient(err)
		}
		return err
	}
	if ai.IsTransient(err) {
		return ai.MarkTransient(err)
	}
	return err
}

// Provider implements ai.AIProvider for Gemini.
type Provider struct {
	client   *genai.Client
	embedder *Embedder
	logger   *slog.Logger
}

// NewProvider connects a Gemini client using the configured API key.
func NewProvider(ctx context.Context, config *ai.Config) (ai.AIProvider, error) {
	return NewProviderWithLogger(ctx, config, slog.Default())
}

// NewProviderWithLogger is NewProvider with an explicit logger.
func NewProviderWithLogger(ctx context.Context, config *ai.Config, logger *slog.Logger) (ai.AIProvider, error) {
	if config.EmbeddingModel == "" {
		config.EmbeddingModel = DefaultModel
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	return &Provider{
		client: client,
		embedder: &Embedder{
			model:  client.EmbeddingModel(config.EmbeddingModel),
			name:   config.EmbeddingModel,
			logger: logger.With("component", "gemini-embedder"),
		},
		logger: logger.With("component", "gemini-provider"),
	}, nil
}

// Name returns "gemini".
func (p *Provider) Name() string {
	return ai.ProviderGemini
}

// Embedder returns the Gemini embedder.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Close closes the underlying client connection.
func (p *Provider) Close() error {
	p.logger.Debug("closing Gemini provider")
	return p.client.Close()
}
