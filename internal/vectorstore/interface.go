// Package vectorstore indexes document chunk embeddings per project and
// answers top-k cosine similarity queries.
//
// Three backends implement Store:
//   - PgvectorStore searches the documents table in PostgreSQL (HNSW index).
//   - ChromemStore is an embedded index, persistent or in-memory.
//   - QdrantStore uses an external Qdrant server over gRPC.
//
// The relational store is the source of truth for chunk rows. Backends other
// than pgvector hold a copy of each chunk's vector and display fields, keyed by
// chunk id and scoped by project.
package vectorstore

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrConnectionFailed indicates gRPC connection issues.
	ErrConnectionFailed = errors.New("failed to connect to Qdrant")

	// ErrDimensionMismatch indicates a vector of the wrong length.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// Document is one indexed chunk.
type Document struct {
	ID        string
	ProjectID string
	GroupID   string
	Title     string
	Content   string
	Vector    []float32
	CreatedAt time.Time
}

// Result is a chunk with its cosine similarity to the query.
type Result struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"projectId"`
	GroupID    string    `json:"groupId"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
	Similarity float64   `json:"similarity"`
}

// Store is a project-scoped similarity index.
//
// Search returns at most k results ordered by similarity descending, ties
// broken by id ascending. A project with no indexed chunks yields an empty,
// non-nil slice.
type Store interface {
	// Upsert adds or replaces documents. Every document needs a vector.
	Upsert(ctx context.Context, docs []Document) error

	// Search returns the k chunks of projectID most similar to vector.
	Search(ctx context.Context, projectID string, vector []float32, k int) ([]Result, error)

	// DeleteGroup removes every chunk of groupID within projectID.
	DeleteGroup(ctx context.Context, projectID, groupID string) error

	// Delete removes chunks by id within projectID.
	Delete(ctx context.Context, projectID string, ids ...string) error

	// Name identifies the backend in logs and metrics.
	Name() string

	// Close releases the backend's resources.
	Close() error
}
