package badge_test

import (
	"testing"

	"github.com/cuemby/gpirm/pkg/badge"
	"github.com/cuemby/gpirm/pkg/rmerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	b := badge.Badge{
		CapType:    badge.CapMO,
		SpaceID:    2,
		ObjectID:   17,
		ClientPDID: 9,
	}
	v, err := badge.Pack(b)
	require.NoError(t, err)
	assert.Equal(t, b, badge.Unpack(v))
}

func TestPackRejectsNoneCapType(t *testing.T) {
	_, err := badge.Pack(badge.Badge{ObjectID: 1})
	assert.Equal(t, rmerr.BadBadge, rmerr.CodeOf(err))
}

func TestPackRejectsFieldOverflow(t *testing.T) {
	_, err := badge.Pack(badge.Badge{CapType: badge.CapPD, ObjectID: badge.MaxObjectID + 1})
	assert.Equal(t, rmerr.BadBadge, rmerr.CodeOf(err))

	_, err = badge.Pack(badge.Badge{CapType: badge.CapPD, ObjectID: 1, ClientPDID: 1 << 20})
	assert.Equal(t, rmerr.BadBadge, rmerr.CodeOf(err))
}

func TestPackAtFieldCeilings(t *testing.T) {
	b := badge.Badge{
		CapType:    badge.CapUserBase,
		SpaceID:    1<<16 - 1,
		ObjectID:   badge.MaxObjectID,
		ClientPDID: 1<<20 - 1,
	}
	v, err := badge.Pack(b)
	require.NoError(t, err)
	assert.Equal(t, b, badge.Unpack(v))
}

func TestIsAllocEntry(t *testing.T) {
	assert.True(t, badge.Badge{CapType: badge.CapMO}.IsAllocEntry())
	assert.False(t, badge.Badge{CapType: badge.CapMO, ObjectID: 3}.IsAllocEntry())
}

func TestValid(t *testing.T) {
	assert.False(t, badge.Badge{}.Valid())
	assert.True(t, badge.Badge{CapType: badge.CapEP}.Valid())
	assert.False(t, badge.Badge{CapType: badge.CapEP, ObjectID: badge.MaxObjectID + 1}.Valid())
}

func TestStringIsDiagnosticForm(t *testing.T) {
	b := badge.Badge{CapType: badge.CapADS, SpaceID: 3, ObjectID: 12, ClientPDID: 4}
	assert.Equal(t, "ADS_3_12@pd4", b.String())
}
