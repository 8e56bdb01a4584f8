// Package embeddings turns text into fixed-dimension, L2-normalized vectors.
//
// Two providers are supported: FastEmbed (local ONNX, requires cgo) and TEI
// (HTTP). Callers use Lazy, which loads the configured provider once on first
// use and enforces the deployment's vector dimension.
package embeddings

import (
	"context"
	"fmt"
)

// Embedder generates embeddings for documents and queries.
type Embedder interface {
	// EmbedDocuments returns one vector per text, in input order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery returns the vector for a single text.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Provider is an Embedder bound to one model.
type Provider interface {
	Embedder
	// Dimension returns the embedding dimension, or 0 when unknown.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is "fastembed" or "tei".
	Provider string
	Model    string
	// BaseURL is the TEI URL.
	BaseURL string
	// CacheDir is the FastEmbed model cache directory.
	CacheDir string
	// Dimension is the expected output dimension.
	Dimension int
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(ctx context.Context, cfg ProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case "fastembed", "":
		return NewFastEmbedProvider(ctx, FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	case "tei":
		svc, err := NewService(Config{BaseURL: cfg.BaseURL, Model: cfg.Model})
		if err != nil {
			return nil, err
		}
		dim := cfg.Dimension
		if known, ok := fastEmbedModelDimension(cfg.Model); ok {
			dim = known
		}
		return &teiProvider{Service: svc, dimension: dim}, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// teiProvider wraps Service to implement Provider.
type teiProvider struct {
	*Service
	dimension int
}

func (t *teiProvider) Dimension() int { return t.dimension }

func (t *teiProvider) Close() error { return nil }

// fastEmbedModelDimension returns dimensions for models with a known output size.
func fastEmbedModelDimension(model string) (int, bool) {
	dims := map[string]int{
		"sentence-transformers/all-MiniLM-L6-v2": 384,
		"fast-all-MiniLM-L6-v2":                  384,
		"BAAI/bge-small-en-v1.5":                 384,
		"BAAI/bge-base-en-v1.5":                  768,
	}
	dim, ok := dims[model]
	return dim, ok
}
