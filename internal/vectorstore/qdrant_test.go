package vectorstore

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestQdrantConfig_Validate(t *testing.T) {
	base := QdrantConfig{Host: "localhost", Port: 6334, VectorSize: 384}
	base.ApplyDefaults()
	require.NoError(t, base.Validate())
	assert.Equal(t, "worken_documents", base.CollectionName)

	tests := []struct {
		name   string
		mutate func(*QdrantConfig)
		want   error
	}{
		{"missing host", func(c *QdrantConfig) { c.Host = "" }, ErrInvalidConfig},
		{"bad port", func(c *QdrantConfig) { c.Port = 70000 }, ErrInvalidConfig},
		{"zero vector size", func(c *QdrantConfig) { c.VectorSize = 0 }, ErrInvalidConfig},
		{"bad collection", func(c *QdrantConfig) { c.CollectionName = "Worken-Docs" }, ErrInvalidCollectionName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.want)
		})
	}
}

func TestIsTransientError(t *testing.T) {
	assert.False(t, IsTransientError(nil))
	assert.False(t, IsTransientError(errors.New("plain")))
	assert.True(t, IsTransientError(status.Error(grpccodes.Unavailable, "down")))
	assert.True(t, IsTransientError(status.Error(grpccodes.DeadlineExceeded, "slow")))
	assert.False(t, IsTransientError(status.Error(grpccodes.InvalidArgument, "bad")))
}

func TestQdrantStore_RetryStopsOnPermanentError(t *testing.T) {
	s := &QdrantStore{config: QdrantConfig{MaxRetries: 3, CircuitBreakerThreshold: 5}}
	calls := 0
	err := s.retryOperation(context.Background(), "op", func() error {
		calls++
		return status.Error(grpccodes.InvalidArgument, "bad")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Contains(t, err.Error(), "permanent")
}

func TestQdrantStore_RetriesTransientError(t *testing.T) {
	s := &QdrantStore{config: QdrantConfig{MaxRetries: 3, RetryBackoff: 1, CircuitBreakerThreshold: 5}}
	calls := 0
	err := s.retryOperation(context.Background(), "op", func() error {
		calls++
		if calls < 3 {
			return status.Error(grpccodes.Unavailable, "down")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

// TestQdrantStore_Integration runs against WORKEN_TEST_QDRANT_HOST (gRPC port 6334).
func TestQdrantStore_Integration(t *testing.T) {
	host := os.Getenv("WORKEN_TEST_QDRANT_HOST")
	if host == "" || testing.Short() {
		t.Skip("WORKEN_TEST_QDRANT_HOST not set")
	}
	port := 6334
	if p := os.Getenv("WORKEN_TEST_QDRANT_PORT"); p != "" {
		port, _ = strconv.Atoi(p)
	}

	ctx := context.Background()
	s, err := NewQdrantStore(ctx, QdrantConfig{
		Host:           host,
		Port:           port,
		VectorSize:     testDim,
		CollectionName: "worken_test_" + uuid.NewString()[:8],
	}, nil)
	require.NoError(t, err)
	defer s.Close()

	project := uuid.NewString()
	a := doc(project, "g1", 1, 0, 0, 0)
	b := doc(project, "g2", 0, 1, 0, 0)
	other := doc(uuid.NewString(), "g1", 1, 0, 0, 0)
	require.NoError(t, s.Upsert(ctx, []Document{a, b, other}))

	results, err := s.Search(ctx, project, []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, a.ID, results[0].ID)

	require.NoError(t, s.DeleteGroup(ctx, project, "g1"))
	require.NoError(t, s.Delete(ctx, project, b.ID))
	results, err = s.Search(ctx, project, []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}
