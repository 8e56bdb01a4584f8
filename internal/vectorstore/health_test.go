package vectorstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingStore struct {
	Store
	err error
}

func (p pingStore) Name() string               { return "fake" }
func (p pingStore) Ping(context.Context) error { return p.err }

func TestPing(t *testing.T) {
	ctx := context.Background()

	t.Run("embedded backend", func(t *testing.T) {
		assert.NoError(t, Ping(ctx, newTestChromem(t)))
	})

	t.Run("healthy remote", func(t *testing.T) {
		assert.NoError(t, Ping(ctx, Instrument(pingStore{})))
	})

	t.Run("unreachable remote", func(t *testing.T) {
		err := Ping(ctx, Instrument(pingStore{err: errors.New("connection refused")}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fake unreachable")
	})
}
