package pd_test

import (
	"testing"

	"github.com/cuemby/gpirm/pkg/ads"
	"github.com/cuemby/gpirm/pkg/badge"
	"github.com/cuemby/gpirm/pkg/cpu"
	"github.com/cuemby/gpirm/pkg/ep"
	"github.com/cuemby/gpirm/pkg/mo"
	"github.com/cuemby/gpirm/pkg/pd"
	"github.com/cuemby/gpirm/pkg/rmerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func harness(t *testing.T) *pd.Component {
	t.Helper()
	pool := mo.NewFramePool(64)
	moc := mo.NewComponent(pool)
	adsc := ads.NewComponent(moc)
	cpuc := cpu.NewComponent(adsc, moc)
	epc := ep.NewComponent()
	return pd.NewComponent(adsc, cpuc, epc)
}

func TestAllocateThenGet(t *testing.T) {
	c := harness(t)
	id, b, err := c.Allocate(0, "root-task", 1)
	require.NoError(t, err)
	assert.Equal(t, pd.New, mustGet(t, c, id).State())
	assert.Equal(t, uint32(0), b.ClientPDID)
}

func TestRuntimeSetupMovesToConfiguredThenRunning(t *testing.T) {
	c := harness(t)
	id, _, err := c.Allocate(0, "img", 1)
	require.NoError(t, err)

	require.NoError(t, c.RuntimeSetup(id, []string{"arg0"}, 0x8000, 0x4000, 0x5000, 0x6000))
	assert.Equal(t, pd.Configured, mustGet(t, c, id).State())

	require.NoError(t, c.MarkRunning(id))
	assert.Equal(t, pd.Running, mustGet(t, c, id).State())

	err = c.RuntimeSetup(id, nil, 0, 0, 0, 0)
	assert.Equal(t, rmerr.InvalidState, rmerr.CodeOf(err))
}

func TestShareRDEThenRemoveRestoresTable(t *testing.T) {
	c := harness(t)
	id, _, err := c.Allocate(0, "img", 1)
	require.NoError(t, err)

	_, ok, err := c.LookupRDE(id, badge.CapUserBase, 7)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.ShareRDE(id, badge.CapUserBase, 7, 0xff))
	e, ok, err := c.LookupRDE(id, badge.CapUserBase, 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(0xff), e.ServerEndpoint)

	require.NoError(t, c.RemoveRDE(id, badge.CapUserBase, 7))
	_, ok, err = c.LookupRDE(id, badge.CapUserBase, 7)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSendCapIncrementsAndInsertsHold(t *testing.T) {
	c := harness(t)
	srcID, _, err := c.Allocate(0, "src", 1)
	require.NoError(t, err)
	dstID, _, err := c.Allocate(0, "dst", 1)
	require.NoError(t, err)

	b := badge.Badge{CapType: badge.CapUserBase, SpaceID: 3, ObjectID: 9, ClientPDID: srcID}

	incCalled := false
	require.NoError(t, c.SendCap(dstID, b, false, func() error {
		incCalled = true
		return nil
	}))
	assert.True(t, incCalled)

	has, err := c.HasHold(dstID, b)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestSendCapRejectsOnIncRefFailure(t *testing.T) {
	c := harness(t)
	dstID, _, err := c.Allocate(0, "dst", 1)
	require.NoError(t, err)

	b := badge.Badge{CapType: badge.CapUserBase, SpaceID: 3, ObjectID: 9, ClientPDID: dstID}
	err = c.SendCap(dstID, b, false, func() error {
		return rmerr.New(rmerr.NotFound, "boom")
	})
	assert.Equal(t, rmerr.NotFound, rmerr.CodeOf(err))

	has, err := c.HasHold(dstID, b)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestWorkQueueFIFOOrderAcrossKinds(t *testing.T) {
	c := harness(t)
	id, _, err := c.Allocate(0, "img", 1)
	require.NoError(t, err)

	require.NoError(t, c.Enqueue(id, pd.WorkItem{Kind: pd.Destroy, ObjectIDs: []uint32{1}}))
	require.NoError(t, c.Enqueue(id, pd.WorkItem{Kind: pd.Free, ObjectIDs: []uint32{2}}))

	item, ok, err := c.GetWork(id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pd.Destroy, item.Kind, "a DESTROY enqueued first is observed first")

	item, ok, err = c.GetWork(id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pd.Free, item.Kind)

	_, ok, err = c.GetWork(id)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := c.PendingWork(id, pd.Free)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLinkChildRecordsChildren(t *testing.T) {
	c := harness(t)
	parentID, _, err := c.Allocate(0, "parent", 1)
	require.NoError(t, err)
	childID, _, err := c.Allocate(parentID, "child", 1)
	require.NoError(t, err)

	require.NoError(t, c.LinkChild(parentID, childID))
	children, err := c.Children(parentID)
	require.NoError(t, err)
	assert.Equal(t, []uint32{childID}, children)
}

func TestOnDeleteReleasesBoundADSAndCPU(t *testing.T) {
	pool := mo.NewFramePool(64)
	moc := mo.NewComponent(pool)
	adsc := ads.NewComponent(moc)
	cpuc := cpu.NewComponent(adsc, moc)
	epc := ep.NewComponent()
	c := pd.NewComponent(adsc, cpuc, epc)

	id, _, err := c.Allocate(0, "img", 1)
	require.NoError(t, err)

	adsID, _, err := adsc.Allocate(id)
	require.NoError(t, err)
	cpuID, _, err := cpuc.Allocate(id)
	require.NoError(t, err)

	require.NoError(t, c.BindADS(id, adsID))
	require.NoError(t, c.BindCPU(id, cpuID))

	require.NoError(t, c.RemoveFromRT(id))

	// BindADS/BindCPU each added a ref on top of the allocate-time ref;
	// onDelete should have released exactly the PD's ref.
	require.NoError(t, adsc.Dec(adsID))
	_, err = adsc.Get(adsID)
	assert.Equal(t, rmerr.NotFound, rmerr.CodeOf(err))

	require.NoError(t, cpuc.Dec(cpuID))
	_, err = cpuc.Get(cpuID)
	assert.Equal(t, rmerr.NotFound, rmerr.CodeOf(err))
}

func mustGet(t *testing.T, c *pd.Component, id uint32) *pd.Object {
	t.Helper()
	obj, err := c.Get(id)
	require.NoError(t, err)
	return obj
}
