package vectorstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Noctocode/worken-ai/internal/config"
)

// NewStore creates the configured backend. db is required for pgvector and
// ignored otherwise.
func NewStore(ctx context.Context, cfg config.VectorStoreConfig, dimension int, db *gorm.DB, logger *zap.Logger) (Store, error) {
	var store Store
	var err error

	switch cfg.Provider {
	case "pgvector":
		store, err = NewPgvectorStore(db, dimension, logger)
	case "chromem", "":
		store, err = NewChromemStore(ChromemConfig{
			Path:       cfg.ChromemPath,
			Compress:   cfg.ChromemCompress,
			VectorSize: dimension,
		}, logger)
	case "qdrant":
		store, err = NewQdrantStore(ctx, QdrantConfig{
			Host:           cfg.QdrantHost,
			Port:           cfg.QdrantPort,
			APIKey:         cfg.QdrantAPIKey.Value(),
			UseTLS:         cfg.QdrantTLS,
			CollectionName: cfg.QdrantCollection,
			VectorSize:     uint64(dimension),
		}, logger)
	default:
		return nil, fmt.Errorf("%w: unsupported vectorstore provider %q (supported: pgvector, chromem, qdrant)", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return Instrument(store), nil
}
