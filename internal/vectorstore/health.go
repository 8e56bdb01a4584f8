package vectorstore

import (
	"context"
	"fmt"
	"time"
)

// pingTimeout bounds a single backend health probe.
const pingTimeout = 2 * time.Second

// Pinger is implemented by backends that depend on a remote service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping probes the backend behind s. Embedded backends are always healthy.
func Ping(ctx context.Context, s Store) error {
	if i, ok := s.(instrumented); ok {
		s = i.Store
	}
	p, ok := s.(Pinger)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return fmt.Errorf("%s unreachable: %w", s.Name(), err)
	}
	return nil
}

// Ping checks the database connection backing the documents table.
func (s *PgvectorStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Ping runs Qdrant's health check RPC.
func (s *QdrantStore) Ping(ctx context.Context) error {
	_, err := s.client.HealthCheck(ctx)
	return err
}
