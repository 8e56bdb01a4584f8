package vectorstore

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noctocode/worken-ai/internal/config"
)

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	s, err := NewStore(ctx, config.VectorStoreConfig{Provider: "chromem"}, testDim, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "chromem", s.Name())

	_, err = NewStore(ctx, config.VectorStoreConfig{Provider: "pgvector"}, testDim, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewStore(ctx, config.VectorStoreConfig{Provider: "faiss"}, testDim, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestInstrument_RecordsOperations(t *testing.T) {
	ctx := context.Background()
	s, err := NewStore(ctx, config.VectorStoreConfig{Provider: "chromem"}, testDim, nil, nil)
	require.NoError(t, err)

	before := testutil.ToFloat64(OperationsTotal.WithLabelValues("chromem", "upsert", "error"))
	assert.Error(t, s.Upsert(ctx, nil))
	after := testutil.ToFloat64(OperationsTotal.WithLabelValues("chromem", "upsert", "error"))
	assert.Equal(t, before+1, after)

	before = testutil.ToFloat64(OperationsTotal.WithLabelValues("chromem", "search", "success"))
	_, err = s.Search(ctx, uuid.NewString(), []float32{1, 0, 0, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(OperationsTotal.WithLabelValues("chromem", "search", "success")))

	assert.Same(t, s.(instrumented).Store, Instrument(s).(instrumented).Store)
}
