package record

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocatorHandsOutDistinctPorts(t *testing.T) {
	a := newAllocator(54000, 54015)

	seen := make(map[int]bool)
	for i := 0; i < 8; i++ {
		port, err := a.Get()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, port, 54000)
		assert.LessOrEqual(t, port, 54015)
		assert.False(t, seen[port], "port %d handed out twice", port)
		seen[port] = true
	}
}

func TestAllocatorReleaseMakesPortReusable(t *testing.T) {
	a := newAllocator(54100, 54100)

	port, err := a.Get()
	require.NoError(t, err)
	require.Equal(t, 54100, port)

	_, err = a.Get()
	assert.ErrorIs(t, err, ErrNoFreePort)

	a.Release(port)
	again, err := a.Get()
	require.NoError(t, err)
	assert.Equal(t, port, again)
}

func TestAllocatorRetriesExternallyBusyPort(t *testing.T) {
	ext, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	port := ext.LocalAddr().(*net.UDPAddr).Port

	a := newAllocator(port, port)
	_, err = a.Get()
	assert.ErrorIs(t, err, ErrNoFreePort)

	// Once the other process lets go, the port is usable again instead of
	// staying blacklisted.
	require.NoError(t, ext.Close())
	got, err := a.Get()
	require.NoError(t, err)
	assert.Equal(t, port, got)
}
