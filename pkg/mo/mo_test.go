package mo_test

import (
	"testing"

	"github.com/cuemby/gpirm/pkg/mo"
	"github.com/cuemby/gpirm/pkg/rmerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateAndFreeOnRefZero(t *testing.T) {
	pool := mo.NewFramePool(16)
	c := mo.NewComponent(pool)

	id, b, err := c.Allocate(9, 4, 12)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), pool.Used())
	assert.Equal(t, uint32(9), b.ClientPDID)

	require.NoError(t, c.Disconnect(id))
	assert.Equal(t, uint64(0), pool.Used())

	_, err = c.Get(id)
	assert.Equal(t, rmerr.NotFound, rmerr.CodeOf(err))
}

func TestAllocateOutOfMemory(t *testing.T) {
	pool := mo.NewFramePool(4)
	c := mo.NewComponent(pool)

	_, _, err := c.Allocate(1, 8, 12)
	assert.Equal(t, rmerr.OutOfMemory, rmerr.CodeOf(err))
}

func TestAllocateInvalidSize(t *testing.T) {
	pool := mo.NewFramePool(16)
	c := mo.NewComponent(pool)

	_, _, err := c.Allocate(1, 0, 12)
	assert.Equal(t, rmerr.InvalidState, rmerr.CodeOf(err))
}

func TestDeleteFailsStillAttached(t *testing.T) {
	pool := mo.NewFramePool(16)
	c := mo.NewComponent(pool)

	id, _, err := c.Allocate(1, 2, 12)
	require.NoError(t, err)

	require.NoError(t, c.MarkAttached(id))
	err = c.Delete(id)
	assert.Equal(t, rmerr.StillAttached, rmerr.CodeOf(err))

	require.NoError(t, c.MarkDetached(id))
	require.NoError(t, c.Delete(id))
}

func TestConnectIncrementsRefcount(t *testing.T) {
	pool := mo.NewFramePool(16)
	c := mo.NewComponent(pool)

	id, _, err := c.Allocate(1, 2, 12)
	require.NoError(t, err)

	_, err = c.Connect(2, id)
	require.NoError(t, err)

	// One dec from the original allocation leaves the connect's ref.
	require.NoError(t, c.Disconnect(id))
	_, err = c.Get(id)
	require.NoError(t, err)

	require.NoError(t, c.Disconnect(id))
	_, err = c.Get(id)
	assert.Equal(t, rmerr.NotFound, rmerr.CodeOf(err))
}
