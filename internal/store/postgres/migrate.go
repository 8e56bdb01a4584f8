package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Migrate creates the schema. dimension fixes the embedding column size and
// must match the embedding model.
func (s *Store) Migrate(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("migrate: dimension must be positive, got %d", dimension)
	}
	db := s.db.WithContext(ctx)

	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("enabling pgvector: %w", err)
	}

	if err := db.AutoMigrate(
		&userModel{},
		&teamModel{},
		&memberModel{},
		&projectModel{},
		&conversationModel{},
		&messageModel{},
	); err != nil {
		return fmt.Errorf("migrating tables: %w", err)
	}

	statements := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_team_members_team_email ON team_members (team_id, lower(email))`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS documents (
	id uuid PRIMARY KEY,
	project_id uuid NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	group_id uuid NOT NULL,
	title text NOT NULL,
	content text NOT NULL,
	embedding vector(%d),
	created_at timestamptz NOT NULL DEFAULT now()
)`, dimension),
		`CREATE INDEX IF NOT EXISTS idx_documents_project_group ON documents (project_id, group_id)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_project_created ON documents (project_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_embedding ON documents USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migrating documents: %w", err)
		}
	}

	var existing int
	err := db.Raw(`SELECT atttypmod FROM pg_attribute
WHERE attrelid = 'documents'::regclass AND attname = 'embedding'`).Scan(&existing).Error
	if err != nil {
		return fmt.Errorf("reading embedding dimension: %w", err)
	}
	if existing != dimension {
		return fmt.Errorf("documents.embedding has dimension %d, configured %d", existing, dimension)
	}

	s.logger.Info("database migrated", zap.Int("embedding_dimension", dimension))
	return nil
}
