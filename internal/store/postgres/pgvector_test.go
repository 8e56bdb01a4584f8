package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Noctocode/worken-ai/internal/store"
	"github.com/Noctocode/worken-ai/internal/store/storetest"
	"github.com/Noctocode/worken-ai/internal/vectorstore"
)

func TestPgvectorStore_Search(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	u := storetest.SeedUser(t, s, "search", true)
	p := storetest.SeedProject(t, s, u, nil)
	empty := storetest.SeedProject(t, s, u, nil)

	group := "7d2e4b6a-1c3f-4e5d-8a9b-0c1d2e3f4a5b"
	docs := []store.Document{
		{ProjectID: p.ID, GroupID: group, Title: "Handbook", Content: "refunds", Embedding: []float32{1, 0, 0, 0}},
		{ProjectID: p.ID, GroupID: group, Title: "Handbook", Content: "shipping", Embedding: []float32{0, 1, 0, 0}},
		{ProjectID: p.ID, GroupID: group, Title: "Handbook", Content: "returns and shipping", Embedding: []float32{0.5, 0.5, 0, 0}},
		{ProjectID: p.ID, GroupID: group, Title: "Handbook", Content: "not yet embedded"},
	}
	require.NoError(t, s.Documents().InsertBatch(ctx, docs))

	index, err := vectorstore.NewPgvectorStore(s.DB(), testDimension, zap.NewNop())
	require.NoError(t, err)

	query := []float32{0, 1, 0, 0}
	results, err := index.Search(ctx, p.ID, query, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, docs[1].ID, results[0].ID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
	assert.Equal(t, docs[2].ID, results[1].ID)
	assert.Equal(t, docs[0].ID, results[2].ID)
	for _, r := range results {
		assert.NotEqual(t, docs[3].ID, r.ID, "chunk without embedding must not be ranked")
		assert.Equal(t, p.ID, r.ProjectID)
	}

	again, err := index.Search(ctx, p.ID, query, 10)
	require.NoError(t, err)
	assert.Equal(t, results, again)

	top, err := index.Search(ctx, p.ID, query, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, docs[1].ID, top[0].ID)

	none, err := index.Search(ctx, empty.ID, query, 10)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = index.Search(ctx, p.ID, []float32{1, 0}, 10)
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
}
