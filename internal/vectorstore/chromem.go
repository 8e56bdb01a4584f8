package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var chromemTracer = otel.Tracer("worken.vectorstore.chromem")

// ChromemConfig holds configuration for the embedded chromem-go index.
type ChromemConfig struct {
	// Path is the persistence directory. Empty keeps the index in memory.
	Path string

	// Compress enables gzip compression of persisted collections.
	Compress bool

	// VectorSize is the embedding dimension.
	VectorSize int
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore keeps one chromem collection per project.
type ChromemStore struct {
	db     *chromem.DB
	config ChromemConfig
	logger *zap.Logger
}

// errNoEmbeddingFunc guards against chromem embedding text itself; vectors
// always come from the caller.
var errNoEmbeddingFunc = errors.New("chromem: documents must carry precomputed embeddings")

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbeddingFunc
}

// NewChromemStore opens a persistent index at config.Path, or an in-memory one.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	var db *chromem.DB
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		path, err := expandChromemPath(config.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		db, err = openPersistentChromem(path, config.Compress, logger)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
		config.Path = path
	}

	logger.Info("chromem store initialized",
		zap.String("path", config.Path),
		zap.Bool("compress", config.Compress),
		zap.Int("vector_size", config.VectorSize),
	)

	return &ChromemStore{db: db, config: config, logger: logger}, nil
}

// expandChromemPath expands a leading ~ to the home directory.
func expandChromemPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

func (s *ChromemStore) Name() string { return "chromem" }

// Upsert adds documents to their projects' collections.
func (s *ChromemStore) Upsert(ctx context.Context, docs []Document) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Upsert")
	defer span.End()
	span.SetAttributes(attribute.Int("document_count", len(docs)))

	if err := checkDocuments(docs, s.config.VectorSize); err != nil {
		span.RecordError(err)
		return err
	}

	byProject := make(map[string][]chromem.Document)
	for _, d := range docs {
		// chromem normalizes in place, so hand it a copy.
		vec := make([]float32, len(d.Vector))
		copy(vec, d.Vector)
		byProject[d.ProjectID] = append(byProject[d.ProjectID], chromem.Document{
			ID:      d.ID,
			Content: d.Content,
			Metadata: map[string]string{
				keyProjectID: d.ProjectID,
				keyGroupID:   d.GroupID,
				keyTitle:     d.Title,
				keyCreatedAt: d.CreatedAt.UTC().Format(time.RFC3339Nano),
			},
			Embedding: vec,
		})
	}

	for projectID, cdocs := range byProject {
		name := projectCollection(projectID)
		collection, err := s.db.GetOrCreateCollection(name, nil, noEmbedding)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("getting collection %s: %w", name, err)
		}
		if err := collection.AddDocuments(ctx, cdocs, 1); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("adding documents to %s: %w", name, err)
		}
		s.logger.Debug("indexed chunks", zap.String("collection", name), zap.Int("count", len(cdocs)))
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Search queries the project's collection. k is capped at the collection size.
func (s *ChromemStore) Search(ctx context.Context, projectID string, vector []float32, k int) ([]Result, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Search")
	defer span.End()

	k = normalizeK(k)
	span.SetAttributes(attribute.String("project.id", projectID), attribute.Int("k", k))

	if len(vector) != s.config.VectorSize {
		return nil, fmt.Errorf("%w: query has %d values, want %d", ErrDimensionMismatch, len(vector), s.config.VectorSize)
	}

	collection := s.db.GetCollection(projectCollection(projectID), noEmbedding)
	if collection == nil {
		return []Result{}, nil
	}
	count := collection.Count()
	if count == 0 {
		return []Result{}, nil
	}
	if k > count {
		k = count
	}

	query := make([]float32, len(vector))
	copy(query, vector)
	hits, err := collection.QueryEmbedding(ctx, query, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		created, _ := time.Parse(time.RFC3339Nano, h.Metadata[keyCreatedAt])
		results = append(results, Result{
			ID:         h.ID,
			ProjectID:  h.Metadata[keyProjectID],
			GroupID:    h.Metadata[keyGroupID],
			Title:      h.Metadata[keyTitle],
			Content:    h.Content,
			CreatedAt:  created,
			Similarity: float64(h.Similarity),
		})
	}
	sortResults(results)

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// DeleteGroup removes a group's chunks from the project's collection.
func (s *ChromemStore) DeleteGroup(ctx context.Context, projectID, groupID string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.DeleteGroup")
	defer span.End()
	span.SetAttributes(attribute.String("project.id", projectID), attribute.String("group.id", groupID))

	collection := s.db.GetCollection(projectCollection(projectID), noEmbedding)
	if collection == nil {
		return nil
	}
	if err := collection.Delete(ctx, map[string]string{keyGroupID: groupID}, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting group %s: %w", groupID, err)
	}
	return nil
}

// Delete removes chunks by id from the project's collection.
func (s *ChromemStore) Delete(ctx context.Context, projectID string, ids ...string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("project.id", projectID), attribute.Int("id_count", len(ids)))

	if len(ids) == 0 {
		return nil
	}
	collection := s.db.GetCollection(projectCollection(projectID), noEmbedding)
	if collection == nil {
		return nil
	}
	if err := collection.Delete(ctx, nil, nil, ids...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting chunks: %w", err)
	}
	return nil
}

// Close is a no-op; chromem persists on every write.
func (s *ChromemStore) Close() error {
	s.logger.Info("chromem store closed")
	return nil
}

var _ Store = (*ChromemStore)(nil)
