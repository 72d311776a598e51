package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmeet/openmeet/internal/core"
)

func TestPoolRequiresWorkers(t *testing.T) {
	_, err := NewPool(nil)
	assert.ErrorIs(t, err, ErrNoWorkers)
}

func TestAssignRoomPicksLeastLoaded(t *testing.T) {
	workers := []core.Worker{newFakeWorker(), newFakeWorker(), newFakeWorker()}
	pool, err := NewPool(workers)
	require.NoError(t, err)

	pool.slots[0].balance.Store(2)
	pool.slots[1].balance.Store(0)
	pool.slots[2].balance.Store(1)

	w, router, err := pool.AssignRoom()
	require.NoError(t, err)
	require.NotNil(t, router)
	assert.Equal(t, workers[1].ID(), w.ID())
	assert.Equal(t, []int64{2, 1, 1}, pool.Balances())
}

func TestAssignRoomTiesResolveInOrder(t *testing.T) {
	workers := []core.Worker{newFakeWorker(), newFakeWorker()}
	pool, err := NewPool(workers)
	require.NoError(t, err)

	w, _, err := pool.AssignRoom()
	require.NoError(t, err)
	assert.Equal(t, workers[0].ID(), w.ID())

	w, _, err = pool.AssignRoom()
	require.NoError(t, err)
	assert.Equal(t, workers[1].ID(), w.ID())
}

func TestResetBalances(t *testing.T) {
	pool, err := NewPool([]core.Worker{newFakeWorker(), newFakeWorker()})
	require.NoError(t, err)

	_, _, err = pool.AssignRoom()
	require.NoError(t, err)
	_, _, err = pool.AssignRoom()
	require.NoError(t, err)
	require.Equal(t, []int64{1, 1}, pool.Balances())

	pool.ResetBalances()
	assert.Equal(t, []int64{0, 0}, pool.Balances())
}
