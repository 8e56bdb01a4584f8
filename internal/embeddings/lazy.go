package embeddings

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrModelLoad wraps the cached failure of the first model load.
	ErrModelLoad = errors.New("embedding model failed to load")

	// ErrDimensionMismatch indicates a vector whose length differs from the configured dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Factory constructs the underlying provider. It runs at most once per Lazy.
type Factory func(ctx context.Context) (Provider, error)

// Lazy loads its provider on first use and shares it across goroutines.
//
// Concurrent first callers block on the same load. A failed load is cached:
// every later call returns the same error without retrying.
type Lazy struct {
	factory   Factory
	model     string
	dimension int
	logger    *zap.Logger
	metrics   *Metrics

	once     sync.Once
	provider Provider
	err      error
}

// NewLazy returns a Lazy that enforces dimension on every produced vector.
func NewLazy(factory Factory, model string, dimension int, logger *zap.Logger) *Lazy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lazy{
		factory:   factory,
		model:     model,
		dimension: dimension,
		logger:    logger,
		metrics:   NewMetrics(logger),
	}
}

// NewLazyFromConfig builds a Lazy over NewProvider.
func NewLazyFromConfig(cfg ProviderConfig, logger *zap.Logger) *Lazy {
	return NewLazy(func(ctx context.Context) (Provider, error) {
		return NewProvider(ctx, cfg)
	}, cfg.Model, cfg.Dimension, logger)
}

func (l *Lazy) load(ctx context.Context) (Provider, error) {
	l.once.Do(func() {
		start := time.Now()
		// The load outlives the first caller's request.
		p, err := l.factory(context.WithoutCancel(ctx))
		if err == nil && p.Dimension() != 0 && p.Dimension() != l.dimension {
			_ = p.Close()
			err = fmt.Errorf("%w: model produces %d, configured %d", ErrDimensionMismatch, p.Dimension(), l.dimension)
		}
		l.metrics.RecordLoad(ctx, l.model, time.Since(start), err)
		if err != nil {
			l.err = fmt.Errorf("%w: %w", ErrModelLoad, err)
			l.logger.Error("embedding model load failed", zap.String("model", l.model), zap.Error(err))
			return
		}
		l.provider = p
		l.logger.Info("embedding model loaded",
			zap.String("model", l.model),
			zap.Int("dimension", l.dimension),
			zap.Duration("duration", time.Since(start)))
	})
	return l.provider, l.err
}

// EmbedDocuments returns one normalized vector per text, in input order.
func (l *Lazy) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	p, err := l.load(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	vectors, err := p.EmbedDocuments(ctx, texts)
	if err == nil {
		err = l.finish(vectors, len(texts))
	}
	l.metrics.RecordGeneration(ctx, l.model, "documents", time.Since(start), len(texts), err)
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

// EmbedQuery returns the normalized vector for text.
func (l *Lazy) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	p, err := l.load(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	vector, err := p.EmbedQuery(ctx, text)
	if err == nil {
		err = l.finish([][]float32{vector}, 1)
	}
	l.metrics.RecordGeneration(ctx, l.model, "query", time.Since(start), 1, err)
	if err != nil {
		return nil, err
	}
	return vector, nil
}

// finish checks count and dimension, then normalizes in place.
func (l *Lazy) finish(vectors [][]float32, want int) error {
	if len(vectors) != want {
		return fmt.Errorf("%w: got %d vectors for %d inputs", ErrEmbeddingFailed, len(vectors), want)
	}
	for i, v := range vectors {
		if len(v) != l.dimension {
			return fmt.Errorf("%w: vector %d has %d values, want %d", ErrDimensionMismatch, i, len(v), l.dimension)
		}
		Normalize(v)
	}
	return nil
}

// Dimension returns the configured dimension without loading the model.
func (l *Lazy) Dimension() int { return l.dimension }

// Close releases the provider if it was loaded. Call it after all embedding
// calls have returned.
func (l *Lazy) Close() error {
	if l.provider != nil {
		return l.provider.Close()
	}
	return nil
}

// Normalize scales v to unit L2 norm. Zero vectors are left unchanged.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}
