package ads_test

import (
	"testing"

	"github.com/cuemby/gpirm/pkg/ads"
	"github.com/cuemby/gpirm/pkg/mo"
	"github.com/cuemby/gpirm/pkg/rmerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHarness(t *testing.T) (*ads.Component, *mo.Component, uint32) {
	t.Helper()
	pool := mo.NewFramePool(64)
	moc := mo.NewComponent(pool)
	adsc := ads.NewComponent(moc)
	_, _, err := adsc.Allocate(1)
	require.NoError(t, err)
	return adsc, moc, 1
}

func TestReserveAttachRemoveRoundTrip(t *testing.T) {
	adsc, moc, pd := newHarness(t)
	id, _, err := adsc.Allocate(pd)
	require.NoError(t, err)
	as, err := adsc.Get(id)
	require.NoError(t, err)

	moID, _, err := moc.Allocate(pd, 4, 12)
	require.NoError(t, err)

	vaddr, err := as.Attach(moc, moID, ads.AttachRequest{
		NumPages: 4,
		PageBits: 12,
		Rights:   ads.Read | ads.Write,
	})
	require.NoError(t, err)
	assert.NotZero(t, vaddr)

	obj, err := moc.Get(moID)
	require.NoError(t, err)
	assert.True(t, obj.Attached())

	require.NoError(t, as.Remove(moc, vaddr))
	obj, err = moc.Get(moID)
	require.NoError(t, err)
	assert.False(t, obj.Attached())

	// Range is free again.
	start := vaddr
	_, err = as.Reserve(&start, 4, 12, "", ads.Read, false)
	assert.NoError(t, err)
}

func TestReserveRejectsOverlap(t *testing.T) {
	adsc, _, pd := newHarness(t)
	id, _, err := adsc.Allocate(pd)
	require.NoError(t, err)
	as, err := adsc.Get(id)
	require.NoError(t, err)

	start := uint64(0x40000000)
	_, err = as.Reserve(&start, 4, 12, "", ads.Read, false)
	require.NoError(t, err)

	overlapStart := start + (1 << 12)
	_, err = as.Reserve(&overlapStart, 4, 12, "", ads.Read, false)
	assert.Equal(t, rmerr.Overlap, rmerr.CodeOf(err))
}

func TestAttachWithoutReserveDoesReserveAndAttach(t *testing.T) {
	adsc, moc, pd := newHarness(t)
	id, _, err := adsc.Allocate(pd)
	require.NoError(t, err)
	as, err := adsc.Get(id)
	require.NoError(t, err)

	moID, _, err := moc.Allocate(pd, 1, 12)
	require.NoError(t, err)

	_, err = as.Attach(moc, moID, ads.AttachRequest{NumPages: 1, PageBits: 12, Rights: ads.Read})
	require.NoError(t, err)
}

func TestLoadImageMergesOverlapToBroaderRights(t *testing.T) {
	adsc, _, pd := newHarness(t)
	id, _, err := adsc.Allocate(pd)
	require.NoError(t, err)
	as, err := adsc.Get(id)
	require.NoError(t, err)

	segs := []ads.Segment{
		{VAddr: 0x1000, NumPages: 1, PageBits: 12, Rights: ads.Read},
		{VAddr: 0x1000, NumPages: 1, PageBits: 12, Rights: ads.Read | ads.Exec},
	}
	starts, err := as.LoadImage(segs)
	require.NoError(t, err)
	require.Len(t, starts, 2)
	assert.Equal(t, starts[0], starts[1])

	vmrs := as.VMRs()
	require.Len(t, vmrs, 1)
	assert.Equal(t, ads.Read|ads.Exec, vmrs[0].Rights)
}

func TestShallowCopyOmitsRequestedVMRAndBumpsRefs(t *testing.T) {
	adsc, moc, pd := newHarness(t)
	id, _, err := adsc.Allocate(pd)
	require.NoError(t, err)
	as, err := adsc.Get(id)
	require.NoError(t, err)

	moID, _, err := moc.Allocate(pd, 1, 12)
	require.NoError(t, err)
	keepVAddr, err := as.Attach(moc, moID, ads.AttachRequest{NumPages: 1, PageBits: 12, Rights: ads.Read})
	require.NoError(t, err)

	omitMoID, _, err := moc.Allocate(pd, 1, 12)
	require.NoError(t, err)
	omitVAddr, err := as.Attach(moc, omitMoID, ads.AttachRequest{NumPages: 1, PageBits: 12, Rights: ads.Read})
	require.NoError(t, err)

	cp, err := as.ShallowCopy(moc, map[uint64]bool{omitVAddr: true})
	require.NoError(t, err)

	vmrs := cp.VMRs()
	require.Len(t, vmrs, 1)
	assert.Equal(t, keepVAddr, vmrs[0].VAddr)

	// Removing the source's own VMR leaves the MO attached only through
	// the copy's bumped ref and attachment.
	require.NoError(t, as.Remove(moc, keepVAddr))
	obj, err := moc.Get(moID)
	require.NoError(t, err)
	assert.True(t, obj.Attached())
}
