package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noctocode/worken-ai/internal/store"
	"github.com/Noctocode/worken-ai/internal/store/storetest"
)

const testDimension = 4

// openTestStore connects to WORKEN_TEST_DATABASE_URL and empties every table.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("WORKEN_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("WORKEN_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, dsn, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(ctx, testDimension))
	require.NoError(t, s.db.Exec(`TRUNCATE documents, messages, conversations, projects, team_members, teams, users`).Error)
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return openTestStore(t) })
}

func TestMigrate_RejectsDimensionChange(t *testing.T) {
	s := openTestStore(t)
	err := s.Migrate(context.Background(), testDimension+1)
	assert.ErrorContains(t, err, "dimension")
}

func TestDocuments_EmbeddingRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	u := storetest.SeedUser(t, s, "vec", true)
	p := storetest.SeedProject(t, s, u, nil)

	docs := []store.Document{
		{ProjectID: p.ID, GroupID: "5a1c3c1e-3f0e-4c8e-9b84-4b1f0f1f2a01", Title: "T", Content: "with vector", Embedding: []float32{1, 0, 0, 0}},
		{ProjectID: p.ID, GroupID: "5a1c3c1e-3f0e-4c8e-9b84-4b1f0f1f2a01", Title: "T", Content: "without vector"},
	}
	require.NoError(t, s.Documents().InsertBatch(ctx, docs))

	got, err := s.Documents().Get(ctx, docs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0, 0}, got.Embedding)

	got, err = s.Documents().Get(ctx, docs[1].ID)
	require.NoError(t, err)
	assert.Nil(t, got.Embedding)
}
