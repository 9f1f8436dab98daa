package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/lectern/ai"
	"github.com/poiesic/lectern/core"
	"golang.org/x/time/rate"
)

const (
	// DefaultBatchSize is the largest number of texts sent in one provider call.
	DefaultBatchSize = 100
	// DefaultPacing is the minimum interval between consecutive provider calls.
	DefaultPacing = 100 * time.Millisecond
)

// healthProbe is embedded by Health.
const healthProbe = "health check"

// Observer receives embedding activity. Implementations must be safe for
// concurrent use.
type Observer interface {
	EmbeddingBatch(size int, elapsed time.Duration, err error)
	EmbeddingRetry(attempt int, err error)
}

type noopObserver struct{}

func (noopObserver) EmbeddingBatch(int, time.Duration, error) {}
func (noopObserver) EmbeddingRetry(int, error)                {}

// Generator produces vectors for texts in batches.
// A Generator is safe for concurrent use; the pacing limiter is shared by all callers.
type Generator struct {
	embedder  ai.Embedder
	batchSize int
	limiter   *rate.Limiter
	policy    Policy
	observer  Observer
	logger    *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) error {
		if logger == nil {
			logger = slog.Default()
		}
		g.logger = logger
		return nil
	}
}

// WithBatchSize sets the number of texts per provider call.
// Default is 100.
func WithBatchSize(size int) Option {
	return func(g *Generator) error {
		if size <= 0 {
			return fmt.Errorf("batch size must be positive, got %d", size)
		}
		g.batchSize = size
		return nil
	}
}

// WithPacing sets the minimum interval between provider calls.
// Zero disables pacing. Default is 100ms.
func WithPacing(interval time.Duration) Option {
	return func(g *Generator) error {
		if interval < 0 {
			return fmt.Errorf("pacing must not be negative, got %s", interval)
		}
		if interval == 0 {
			g.limiter = rate.NewLimiter(rate.Inf, 1)
			return nil
		}
		g.limiter = rate.NewLimiter(rate.Every(interval), 1)
		return nil
	}
}

// WithRetryPolicy replaces the retry policy.
// Default is DefaultPolicy().
func WithRetryPolicy(policy Policy) Option {
	return func(g *Generator) error {
		if policy.MaxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		g.policy = policy
		return nil
	}
}

// WithObserver sets the receiver of batch and retry events.
func WithObserver(observer Observer) Option {
	return func(g *Generator) error {
		if observer == nil {
			observer = noopObserver{}
		}
		g.observer = observer
		return nil
	}
}

// New creates a Generator around embedder.
func New(embedder ai.Embedder, opts ...Option) (*Generator, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	g := &Generator{
		embedder:  embedder,
		batchSize: DefaultBatchSize,
		limiter:   rate.NewLimiter(rate.Every(DefaultPacing), 1),
		policy:    DefaultPolicy(),
		observer:  noopObserver{},
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	g.logger = g.logger.With("component", "embedding-generator")

	return g, nil
}

// BatchSize returns the number of texts sent per provider call.
func (g *Generator) BatchSize() int {
	return g.batchSize
}

// Embed returns one vector per text, in input order.
// Batches are sent one after another; the first failing batch aborts the
// call and no partial result is returned.
func (g *Generator) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	batches := (len(texts) + g.batchSize - 1) / g.batchSize
	vectors := make([][]float32, 0, len(texts))

	for b := 0; b < batches; b++ {
		start := b * g.batchSize
		end := min(start+g.batchSize, len(texts))

		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: batch %d of %d: %w", core.ErrEmbeddingProvider, b+1, batches, err)
		}

		batch, err := g.embedBatch(ctx, texts[start:end])
		if err != nil {
			g.logger.Error("embedding batch failed", "batch", b+1, "batches", batches, "size", end-start, "err", err)
			return nil, fmt.Errorf("%w: batch %d of %d: %w", core.ErrEmbeddingProvider, b+1, batches, err)
		}
		vectors = append(vectors, batch...)
	}

	g.logger.Debug("embedded texts", "count", len(texts), "batches", batches)
	return vectors, nil
}

func (g *Generator) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	policy := g.policy
	onRetry := policy.OnRetry
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		g.logger.Warn("retrying embedding batch", "attempt", attempt, "delay", delay, "err", err)
		g.observer.EmbeddingRetry(attempt, err)
		if onRetry != nil {
			onRetry(attempt, err, delay)
		}
	}

	var result [][]float32
	err := RetryWithBackoff(ctx, func() error {
		started := time.Now()
		vectors, err := g.embedder.EmbedTexts(ctx, texts)
		if err == nil && len(vectors) != len(texts) {
			err = fmt.Errorf("%w: sent %d texts, received %d vectors", ErrCountMismatch, len(texts), len(vectors))
		}
		g.observer.EmbeddingBatch(len(texts), time.Since(started), err)
		if err != nil {
			return err
		}
		result = vectors
		return nil
	}, policy)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// EmbedOne returns the vector for a single text.
func (g *Generator) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Health embeds a short probe string and reports any failure.
func (g *Generator) Health(ctx context.Context) error {
	vector, err := g.EmbedOne(ctx, healthProbe)
	if err != nil {
		return err
	}
	if len(vector) == 0 {
		return fmt.Errorf("%w: provider returned an empty vector", core.ErrEmbeddingProvider)
	}
	return nil
}
