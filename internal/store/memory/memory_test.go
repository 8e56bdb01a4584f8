package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noctocode/worken-ai/internal/store"
	"github.com/Noctocode/worken-ai/internal/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return New() })
}

func TestStore_ClockIsStrictlyIncreasing(t *testing.T) {
	s := New()
	prev := s.now()
	for range 1000 {
		next := s.now()
		require.True(t, next.After(prev))
		prev = next
	}
}

func TestStore_ConcurrentMemberCreateConflicts(t *testing.T) {
	ctx := context.Background()
	s := New()
	owner := storetest.SeedUser(t, s, "owner", true)
	team := storetest.SeedTeam(t, s, owner)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Members().Create(ctx, &store.TeamMember{
				TeamID: team.ID, Email: "same@example.com", Role: store.RoleBasic, Status: store.StatusPending,
			})
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, store.ErrConflict)
		}
	}
	assert.Equal(t, 1, ok)
}

func TestStore_RollbackKeepsWritesMadeOutsideTx(t *testing.T) {
	ctx := context.Background()
	s := New()
	u := storetest.SeedUser(t, s, "owner", true)

	inTx := make(chan struct{})
	written := make(chan error, 1)
	go func() {
		<-inTx
		written <- s.Projects().Create(ctx, &store.Project{UserID: u.ID, Name: "Outside", Model: "m"})
	}()

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(tx store.Store) error {
		close(inTx)
		time.Sleep(20 * time.Millisecond)
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, <-written)

	list, err := s.Projects().ListPersonal(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Outside", list[0].Name)
}
