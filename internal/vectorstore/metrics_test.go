package vectorstore

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordOperation(t *testing.T) {
	ok := OperationsTotal.WithLabelValues("metrics_test", "delete", "success")
	failed := OperationsTotal.WithLabelValues("metrics_test", "delete", "error")
	okBefore, failedBefore := testutil.ToFloat64(ok), testutil.ToFloat64(failed)

	recordOperation("metrics_test", "delete", nil)
	recordOperation("metrics_test", "delete", errors.New("boom"))
	recordOperation("metrics_test", "delete", errors.New("boom"))

	assert.Equal(t, okBefore+1, testutil.ToFloat64(ok))
	assert.Equal(t, failedBefore+2, testutil.ToFloat64(failed))
}

func TestInstrument_ObservesSearchDuration(t *testing.T) {
	ctx := context.Background()
	s := Instrument(newTestChromem(t))

	_, err := s.Search(ctx, uuid.NewString(), []float32{0, 1, 0, 0}, 3)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(SearchDuration), 1)

	require.NoError(t, s.DeleteGroup(ctx, uuid.NewString(), uuid.NewString()))
	assert.Equal(t, "chromem", s.Name())
}
