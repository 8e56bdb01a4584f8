package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var pgvectorTracer = otel.Tracer("worken.vectorstore.pgvector")

// searchSQL orders by distance so the HNSW vector_cosine_ops index applies.
const searchSQL = `SELECT id, project_id, group_id, title, content, created_at,
	1 - (embedding <=> ?) AS similarity
FROM documents
WHERE project_id = ? AND embedding IS NOT NULL
ORDER BY embedding <=> ?, id
LIMIT ?`

// PgvectorStore searches the documents table directly. Chunk rows already
// carry their embedding, so Upsert and the deletes are no-ops.
type PgvectorStore struct {
	db        *gorm.DB
	dimension int
	logger    *zap.Logger
}

// NewPgvectorStore wraps db. The documents table and its index are created by migrations.
func NewPgvectorStore(db *gorm.DB, dimension int, logger *zap.Logger) (*PgvectorStore, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: pgvector requires a database handle", ErrInvalidConfig)
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PgvectorStore{db: db, dimension: dimension, logger: logger}, nil
}

func (s *PgvectorStore) Name() string { return "pgvector" }

// Upsert only validates; the row insert wrote the vector.
func (s *PgvectorStore) Upsert(_ context.Context, docs []Document) error {
	return checkDocuments(docs, s.dimension)
}

type pgvectorRow struct {
	ID         string
	ProjectID  string
	GroupID    string
	Title      string
	Content    string
	CreatedAt  time.Time
	Similarity float64
}

// Search ranks the project's chunks by 1 - cosine distance.
func (s *PgvectorStore) Search(ctx context.Context, projectID string, vector []float32, k int) ([]Result, error) {
	ctx, span := pgvectorTracer.Start(ctx, "PgvectorStore.Search")
	defer span.End()

	k = normalizeK(k)
	span.SetAttributes(attribute.String("project.id", projectID), attribute.Int("k", k))

	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d values, want %d", ErrDimensionMismatch, len(vector), s.dimension)
	}

	q := pgvector.NewVector(vector)
	var rows []pgvectorRow
	if err := s.db.WithContext(ctx).Raw(searchSQL, q, projectID, q, k).Scan(&rows).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching documents: %w", err)
	}

	results := make([]Result, len(rows))
	for i, r := range rows {
		results[i] = Result(r)
	}
	sortResults(results)

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

func (s *PgvectorStore) DeleteGroup(context.Context, string, string) error { return nil }

func (s *PgvectorStore) Delete(context.Context, string, ...string) error { return nil }

// Close leaves the shared database handle open.
func (s *PgvectorStore) Close() error { return nil }

var _ Store = (*PgvectorStore)(nil)
