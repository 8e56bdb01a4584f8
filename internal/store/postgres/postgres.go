// Package postgres implements store.Store on PostgreSQL through gorm.
//
// Chunk embeddings live in a pgvector column on the documents table, which
// the pgvector similarity backend queries directly.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Noctocode/worken-ai/internal/store"
)

// Store is a gorm-backed store.Store.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open connects to dsn. Unique violations surface as store.ErrConflict.
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("postgres: empty dsn")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := gorm.Open(gormpg.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("database connected")
	return &Store{db: db, logger: logger}, nil
}

// New wraps an existing handle.
func New(db *gorm.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// DB exposes the handle for the pgvector similarity backend.
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) Users() store.Users                 { return users{s.db} }
func (s *Store) Teams() store.Teams                 { return teams{s.db} }
func (s *Store) Members() store.Members             { return members{s.db} }
func (s *Store) Projects() store.Projects           { return projects{s.db} }
func (s *Store) Documents() store.Documents         { return documents{s.db} }
func (s *Store) Conversations() store.Conversations { return conversations{s.db} }
func (s *Store) Messages() store.Messages           { return messages{s.db} }

// WithinTx runs fn inside a database transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(store.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, logger: s.logger})
	})
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ store.Store = (*Store)(nil)

// translate maps gorm errors onto store sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	default:
		return err
	}
}

// affected returns ErrNotFound when a write matched no row.
func affected(res *gorm.DB) error {
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}
