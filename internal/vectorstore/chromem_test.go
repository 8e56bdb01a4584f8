package vectorstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 4

func newTestChromem(t *testing.T) *ChromemStore {
	t.Helper()
	s, err := NewChromemStore(ChromemConfig{VectorSize: testDim}, nil)
	require.NoError(t, err)
	return s
}

func doc(projectID, groupID string, vec ...float32) Document {
	return Document{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		GroupID:   groupID,
		Title:     "Quarterly report",
		Content:   "content for " + groupID,
		Vector:    vec,
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestNewChromemStore_Validation(t *testing.T) {
	_, err := NewChromemStore(ChromemConfig{}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestChromemStore_SearchRanksIdenticalVectorFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestChromem(t)
	project := uuid.NewString()
	group := uuid.NewString()

	docs := []Document{
		doc(project, group, 1, 0, 0, 0),
		doc(project, group, 0, 1, 0, 0),
		doc(project, group, 0.7, 0.7, 0, 0),
	}
	require.NoError(t, s.Upsert(ctx, docs))

	results, err := s.Search(ctx, project, []float32{0, 1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, docs[1].ID, results[0].ID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-5)
	assert.Equal(t, docs[2].ID, results[1].ID)
	assert.GreaterOrEqual(t, results[0].Similarity, results[1].Similarity)

	assert.Equal(t, group, results[0].GroupID)
	assert.Equal(t, "Quarterly report", results[0].Title)
	assert.Equal(t, docs[1].CreatedAt, results[0].CreatedAt)
}

func TestChromemStore_ProjectScoped(t *testing.T) {
	ctx := context.Background()
	s := newTestChromem(t)
	a, b := uuid.NewString(), uuid.NewString()

	require.NoError(t, s.Upsert(ctx, []Document{doc(a, "g", 1, 0, 0, 0)}))
	require.NoError(t, s.Upsert(ctx, []Document{doc(b, "g", 1, 0, 0, 0)}))

	results, err := s.Search(ctx, a, []float32{1, 0, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, a, results[0].ProjectID)
}

func TestChromemStore_EmptyProject(t *testing.T) {
	s := newTestChromem(t)
	results, err := s.Search(context.Background(), uuid.NewString(), []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestChromemStore_KCappedAndDefaulted(t *testing.T) {
	ctx := context.Background()
	s := newTestChromem(t)
	project := uuid.NewString()

	var docs []Document
	for i := 0; i < 7; i++ {
		docs = append(docs, doc(project, "g", float32(i+1), 1, 0, 0))
	}
	require.NoError(t, s.Upsert(ctx, docs))

	results, err := s.Search(ctx, project, []float32{1, 1, 0, 0}, 0)
	require.NoError(t, err)
	assert.Len(t, results, DefaultK)

	results, err = s.Search(ctx, project, []float32{1, 1, 0, 0}, 100)
	require.NoError(t, err)
	assert.Len(t, results, 7)
}

func TestChromemStore_Deterministic(t *testing.T) {
	ctx := context.Background()
	s := newTestChromem(t)
	project := uuid.NewString()

	require.NoError(t, s.Upsert(ctx, []Document{
		doc(project, "g", 1, 0, 0, 0),
		doc(project, "g", 1, 0, 0, 0),
		doc(project, "g", 0, 0, 1, 0),
	}))

	first, err := s.Search(ctx, project, []float32{1, 0, 0, 0}, 3)
	require.NoError(t, err)
	second, err := s.Search(ctx, project, []float32{1, 0, 0, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	// Equal similarity is ordered by id.
	assert.Less(t, first[0].ID, first[1].ID)
}

func TestChromemStore_DeleteGroupAndIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestChromem(t)
	project := uuid.NewString()

	keep := doc(project, "keep", 1, 0, 0, 0)
	drop1 := doc(project, "drop", 0, 1, 0, 0)
	drop2 := doc(project, "drop", 0, 0, 1, 0)
	single := doc(project, "keep", 0, 0, 0, 1)
	require.NoError(t, s.Upsert(ctx, []Document{keep, drop1, drop2, single}))

	require.NoError(t, s.DeleteGroup(ctx, project, "drop"))
	require.NoError(t, s.Delete(ctx, project, single.ID))

	results, err := s.Search(ctx, project, []float32{1, 1, 1, 1}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, keep.ID, results[0].ID)

	// Deletes against unknown projects are no-ops.
	assert.NoError(t, s.DeleteGroup(ctx, uuid.NewString(), "drop"))
	assert.NoError(t, s.Delete(ctx, uuid.NewString(), "x"))
	assert.NoError(t, s.Delete(ctx, project))
}

func TestChromemStore_UpsertValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestChromem(t)

	assert.ErrorIs(t, s.Upsert(ctx, nil), ErrEmptyDocuments)
	assert.ErrorIs(t, s.Upsert(ctx, []Document{doc(uuid.NewString(), "g", 1, 0)}), ErrDimensionMismatch)

	noID := doc(uuid.NewString(), "g", 1, 0, 0, 0)
	noID.ID = ""
	assert.ErrorIs(t, s.Upsert(ctx, []Document{noID}), ErrInvalidConfig)

	_, err := s.Search(ctx, uuid.NewString(), []float32{1}, 5)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestChromemStore_Persistent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	project := uuid.NewString()

	s, err := NewChromemStore(ChromemConfig{Path: dir, VectorSize: testDim}, nil)
	require.NoError(t, err)
	d := doc(project, "g", 0, 0, 1, 0)
	require.NoError(t, s.Upsert(ctx, []Document{d}))
	require.NoError(t, s.Close())

	reopened, err := NewChromemStore(ChromemConfig{Path: dir, VectorSize: testDim}, nil)
	require.NoError(t, err)
	results, err := reopened.Search(ctx, project, []float32{0, 0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, d.ID, results[0].ID)
}
