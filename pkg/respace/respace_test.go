package respace_test

import (
	"testing"

	"github.com/cuemby/gpirm/pkg/badge"
	"github.com/cuemby/gpirm/pkg/respace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndGet(t *testing.T) {
	c := respace.NewComponent()

	id, b, err := c.Register(1, badge.CapUserBase, 0xabc, "kvstore")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), b.ClientPDID)

	sp, err := c.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "kvstore", sp.TypeName)
	assert.Equal(t, uint32(1), sp.ManagingPDID)
}

func TestMapsToRoundTrip(t *testing.T) {
	c := respace.NewComponent()
	fileSpaceID, _, err := c.Register(1, badge.CapUserBase, 1, "files")
	require.NoError(t, err)
	blockSpaceID, _, err := c.Register(1, badge.CapUserBase+1, 2, "blocks")
	require.NoError(t, err)

	fileSpace, err := c.Get(fileSpaceID)
	require.NoError(t, err)

	_, ok := fileSpace.MapsTo()
	assert.False(t, ok)

	fileSpace.SetMapsTo(&blockSpaceID)
	target, ok := fileSpace.MapsTo()
	require.True(t, ok)
	assert.Equal(t, blockSpaceID, target)
}

func TestRegisterBuiltinUsesGivenSpaceID(t *testing.T) {
	c := respace.NewComponent()
	require.NoError(t, c.RegisterBuiltin(1, badge.CapMO, "mo"))

	sp, err := c.Get(1)
	require.NoError(t, err)
	assert.Equal(t, badge.CapMO, sp.ResourceTypeTag)
}
