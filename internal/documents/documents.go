// Package documents ingests project knowledge and answers similarity queries.
//
// Ingestion chunks text, embeds every chunk, stores the chunks as one group
// and indexes them. It is all-or-nothing: an embedding failure happens before
// any write, and an index failure removes the rows that were just inserted.
package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Noctocode/worken-ai/internal/access"
	"github.com/Noctocode/worken-ai/internal/apperr"
	"github.com/Noctocode/worken-ai/internal/chunker"
	"github.com/Noctocode/worken-ai/internal/events"
	"github.com/Noctocode/worken-ai/internal/store"
	"github.com/Noctocode/worken-ai/internal/vectorstore"
)

// Error messages returned to callers.
const (
	msgUnsupportedType  = "Unsupported file type. Only PDF and DOCX are allowed."
	msgNothingExtracted = "No text could be extracted from this file. It may contain only images or unsupported content."
	msgUnreadableFile   = "The uploaded file could not be read."
	msgEmbeddingFailed  = "Failed to generate embeddings"
	msgIndexFailed      = "Failed to update the search index"
)

// Embedder turns texts into vectors of one fixed dimension.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// KeyResolver returns the credential that pays for a project's LLM calls.
type KeyResolver interface {
	ForProject(ctx context.Context, projectID, userID string) string
}

// Chunk is the public view of a stored chunk.
type Chunk struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	GroupID   string    `json:"groupId"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Group summarizes one ingestion.
type Group struct {
	GroupID    string    `json:"groupId"`
	Title      string    `json:"title"`
	CreatedAt  time.Time `json:"createdAt"`
	ChunkCount int       `json:"chunkCount"`
}

// Config wires a Service. Titler, Events and Logger are optional.
type Config struct {
	Store    store.Store
	Index    vectorstore.Store
	Embedder Embedder
	Access   *access.Resolver
	Keys     KeyResolver
	Titler   Titler
	Events   events.Publisher
	Logger   *zap.Logger
}

type Service struct {
	store    store.Store
	index    vectorstore.Store
	embedder Embedder
	access   *access.Resolver
	keys     KeyResolver
	titler   Titler
	events   events.Publisher
	logger   *zap.Logger
}

func NewService(cfg Config) *Service {
	if cfg.Access == nil {
		cfg.Access = access.NewResolver(cfg.Store)
	}
	if cfg.Titler == nil {
		cfg.Titler = StaticTitler{}
	}
	if cfg.Events == nil {
		cfg.Events = events.Noop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Service{
		store:    cfg.Store,
		index:    cfg.Index,
		embedder: cfg.Embedder,
		access:   cfg.Access,
		keys:     cfg.Keys,
		titler:   cfg.Titler,
		events:   cfg.Events,
		logger:   cfg.Logger,
	}
}

// CreateFromText ingests pasted text. Text that yields no chunks is a no-op.
func (s *Service) CreateFromText(ctx context.Context, principal access.Principal, projectID, content string) ([]Chunk, error) {
	start := time.Now()
	project, _, err := s.access.RequireProject(ctx, projectID, principal.UserID)
	if err != nil {
		return nil, err
	}

	chunks := chunker.Chunk(content)
	if len(chunks) == 0 {
		recordIngestion("text", start, 0, nil)
		return []Chunk{}, nil
	}

	var (
		vectors [][]float32
		title   = UntitledDocument
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := s.embedder.EmbedDocuments(gctx, chunks)
		if err != nil {
			return err
		}
		vectors = v
		return nil
	})
	g.Go(func() error {
		var key string
		if s.keys != nil {
			key = s.keys.ForProject(gctx, project.ID, principal.UserID)
		}
		title = s.titler.Title(gctx, key, content)
		return nil
	})
	if err := g.Wait(); err != nil {
		recordIngestion("text", start, 0, err)
		return nil, apperr.Upstream(msgEmbeddingFailed, err)
	}

	out, err := s.ingest(ctx, principal.UserID, project.ID, title, chunks, vectors)
	recordIngestion("text", start, len(out), err)
	return out, err
}

// CreateFromFile ingests a PDF or DOCX upload. The title is the filename
// without its extension.
func (s *Service) CreateFromFile(ctx context.Context, principal access.Principal, projectID string, data []byte, mimeType, filename string) ([]Chunk, error) {
	if !Supported(mimeType) {
		return nil, apperr.BadRequest(msgUnsupportedType)
	}
	source := "pdf"
	if mimeType == MIMEDOCX {
		source = "docx"
	}
	start := time.Now()

	project, _, err := s.access.RequireProject(ctx, projectID, principal.UserID)
	if err != nil {
		return nil, err
	}

	text, err := ExtractText(ctx, data, mimeType)
	if err != nil {
		s.logger.Warn("file extraction failed",
			zap.String("project_id", project.ID),
			zap.String("filename", filename),
			zap.Error(err))
		recordIngestion(source, start, 0, err)
		return nil, apperr.BadRequest(msgUnreadableFile)
	}

	chunks := chunker.Chunk(text)
	if len(chunks) == 0 {
		recordIngestion(source, start, 0, nil)
		return nil, apperr.BadRequest(msgNothingExtracted)
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, chunks)
	if err != nil {
		recordIngestion(source, start, 0, err)
		return nil, apperr.Upstream(msgEmbeddingFailed, err)
	}

	out, err := s.ingest(ctx, principal.UserID, project.ID, TitleFromFilename(filename), chunks, vectors)
	recordIngestion(source, start, len(out), err)
	return out, err
}

// ingest stores chunks as one group in a transaction, then indexes them. An
// index failure deletes the group again.
func (s *Service) ingest(ctx context.Context, userID, projectID, title string, chunks []string, vectors [][]float32) ([]Chunk, error) {
	if len(vectors) != len(chunks) {
		return nil, apperr.Upstream(msgEmbeddingFailed,
			fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks)))
	}

	groupID := uuid.NewString()
	docs := make([]store.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = store.Document{
			ID:        uuid.NewString(),
			ProjectID: projectID,
			GroupID:   groupID,
			Title:     title,
			Content:   c,
			Embedding: vectors[i],
		}
	}

	err := s.store.WithinTx(ctx, func(tx store.Store) error {
		return tx.Documents().InsertBatch(ctx, docs)
	})
	if err != nil {
		return nil, fmt.Errorf("inserting documents: %w", err)
	}

	if err := s.index.Upsert(ctx, toIndexDocuments(docs)); err != nil {
		if _, derr := s.store.Documents().DeleteGroup(context.WithoutCancel(ctx), projectID, groupID); derr != nil {
			s.logger.Error("failed to remove unindexed document group",
				zap.String("project_id", projectID),
				zap.String("group_id", groupID),
				zap.Error(derr))
		}
		return nil, apperr.Upstream(msgIndexFailed, err)
	}

	s.logger.Info("documents ingested",
		zap.String("project_id", projectID),
		zap.String("group_id", groupID),
		zap.Int("chunks", len(docs)))
	s.events.Publish(ctx, events.Event{
		Type:      events.DocumentsIngested,
		UserID:    userID,
		ProjectID: projectID,
		Payload:   map[string]any{"group_id": groupID, "title": title, "chunks": len(docs)},
	})
	return toChunks(docs), nil
}

// List returns the project's chunks, newest first.
func (s *Service) List(ctx context.Context, principal access.Principal, projectID string) ([]Chunk, error) {
	if _, _, err := s.access.RequireProject(ctx, projectID, principal.UserID); err != nil {
		return nil, err
	}
	docs, err := s.store.Documents().ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return toChunks(docs), nil
}

// ListGroups returns one entry per ingestion, newest first.
func (s *Service) ListGroups(ctx context.Context, principal access.Principal, projectID string) ([]Group, error) {
	if _, _, err := s.access.RequireProject(ctx, projectID, principal.UserID); err != nil {
		return nil, err
	}
	groups, err := s.store.Documents().ListGroups(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing document groups: %w", err)
	}
	out := make([]Group, len(groups))
	for i, g := range groups {
		out[i] = Group(g)
	}
	return out, nil
}

// DeleteGroup removes every chunk of one ingestion and returns them.
func (s *Service) DeleteGroup(ctx context.Context, principal access.Principal, projectID, groupID string) ([]Chunk, error) {
	if _, _, err := s.access.RequireProject(ctx, projectID, principal.UserID); err != nil {
		return nil, err
	}
	if err := s.index.DeleteGroup(ctx, projectID, groupID); err != nil {
		return nil, apperr.Upstream(msgIndexFailed, err)
	}

	var deleted []store.Document
	err := s.store.WithinTx(ctx, func(tx store.Store) error {
		var err error
		deleted, err = tx.Documents().DeleteGroup(ctx, projectID, groupID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("deleting document group: %w", err)
	}

	if len(deleted) > 0 {
		s.events.Publish(ctx, events.Event{
			Type:      events.DocumentsDeleted,
			UserID:    principal.UserID,
			ProjectID: projectID,
			Payload:   map[string]any{"group_id": groupID, "chunks": len(deleted)},
		})
	}
	return toChunks(deleted), nil
}

// Delete removes one chunk. A chunk in a project the caller cannot access is
// reported as not found.
func (s *Service) Delete(ctx context.Context, principal access.Principal, documentID string) (*Chunk, error) {
	notFound := apperr.NotFoundf("Document %s not found", documentID)

	doc, err := s.store.Documents().Get(ctx, documentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading document: %w", err)
	}
	if _, _, err := s.access.RequireProject(ctx, doc.ProjectID, principal.UserID); err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, notFound
		}
		return nil, err
	}

	if err := s.index.Delete(ctx, doc.ProjectID, doc.ID); err != nil {
		return nil, apperr.Upstream(msgIndexFailed, err)
	}
	deleted, err := s.store.Documents().Delete(ctx, doc.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound
	}
	if err != nil {
		return nil, fmt.Errorf("deleting document: %w", err)
	}

	s.events.Publish(ctx, events.Event{
		Type:      events.DocumentsDeleted,
		UserID:    principal.UserID,
		ProjectID: deleted.ProjectID,
		Payload:   map[string]any{"document_id": deleted.ID, "group_id": deleted.GroupID, "chunks": 1},
	})
	out := toChunk(*deleted)
	return &out, nil
}

// Search returns the k chunks of the project most similar to query. It does
// not check access; callers acting for a user use SearchForPrincipal.
func (s *Service) Search(ctx context.Context, projectID, query string, k int) ([]vectorstore.Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperr.BadRequest("query is required")
	}
	if k <= 0 {
		k = vectorstore.DefaultK
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, apperr.Upstream(msgEmbeddingFailed, err)
	}
	results, err := s.index.Search(ctx, projectID, vector, k)
	if err != nil {
		return nil, fmt.Errorf("searching documents: %w", err)
	}
	return results, nil
}

// SearchForPrincipal checks project access, then searches.
func (s *Service) SearchForPrincipal(ctx context.Context, principal access.Principal, projectID, query string, k int) ([]vectorstore.Result, error) {
	if _, _, err := s.access.RequireProject(ctx, projectID, principal.UserID); err != nil {
		return nil, err
	}
	return s.Search(ctx, projectID, query, k)
}

func toIndexDocuments(docs []store.Document) []vectorstore.Document {
	out := make([]vectorstore.Document, len(docs))
	for i, d := range docs {
		out[i] = vectorstore.Document{
			ID:        d.ID,
			ProjectID: d.ProjectID,
			GroupID:   d.GroupID,
			Title:     d.Title,
			Content:   d.Content,
			Vector:    d.Embedding,
			CreatedAt: d.CreatedAt,
		}
	}
	return out
}

func toChunk(d store.Document) Chunk {
	return Chunk{
		ID:        d.ID,
		ProjectID: d.ProjectID,
		GroupID:   d.GroupID,
		Title:     d.Title,
		Content:   d.Content,
		CreatedAt: d.CreatedAt,
	}
}

func toChunks(docs []store.Document) []Chunk {
	out := make([]Chunk, len(docs))
	for i, d := range docs {
		out[i] = toChunk(d)
	}
	return out
}
