package work_test

import (
	"testing"

	"github.com/cuemby/gpirm/pkg/ads"
	"github.com/cuemby/gpirm/pkg/badge"
	"github.com/cuemby/gpirm/pkg/cascade"
	"github.com/cuemby/gpirm/pkg/cpu"
	"github.com/cuemby/gpirm/pkg/ep"
	"github.com/cuemby/gpirm/pkg/mo"
	"github.com/cuemby/gpirm/pkg/pd"
	"github.com/cuemby/gpirm/pkg/respace"
	"github.com/cuemby/gpirm/pkg/rmerr"
	"github.com/cuemby/gpirm/pkg/work"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFixture(t *testing.T) (*pd.Component, *respace.Component, *cascade.Engine, *work.Extractor) {
	t.Helper()
	pool := mo.NewFramePool(64)
	moc := mo.NewComponent(pool)
	adsc := ads.NewComponent(moc)
	cpuc := cpu.NewComponent(adsc, moc)
	epc := ep.NewComponent()
	pdc := pd.NewComponent(adsc, cpuc, epc)
	spc := respace.NewComponent()
	cas := cascade.NewEngine(pdc, spc, moc, adsc, cpuc, epc, cascade.ResourcesRecursive, cascade.UnboundedDepth)
	x := work.NewExtractor(pdc, spc, cas)
	return pdc, spc, cas, x
}

func TestDumpCompletesImmediatelyWithNoManagedSpaces(t *testing.T) {
	pdc, _, _, x := newFixture(t)
	root, _, err := pdc.Allocate(0, "root", 0)
	require.NoError(t, err)

	var got *work.Graph
	require.NoError(t, x.Dump(root, func(g *work.Graph) { got = g }))
	require.NotNil(t, got)
	assert.Len(t, got.PDs, 1)
	assert.Equal(t, 0, x.NMissing())
	assert.False(t, x.InProgress())
}

func TestDumpDefersUntilEverySubgraphArrives(t *testing.T) {
	pdc, spc, _, x := newFixture(t)
	root, _, err := pdc.Allocate(0, "root", 0)
	require.NoError(t, err)
	server1, _, err := pdc.Allocate(0, "server1", 0)
	require.NoError(t, err)
	server2, _, err := pdc.Allocate(0, "server2", 0)
	require.NoError(t, err)

	_, _, err = spc.Register(server1, badge.CapUserBase, 1, "widgets")
	require.NoError(t, err)
	_, _, err = spc.Register(server2, badge.CapUserBase+1, 2, "gadgets")
	require.NoError(t, err)

	var got *work.Graph
	require.NoError(t, x.Dump(root, func(g *work.Graph) { got = g }))
	assert.Nil(t, got, "reply must wait for both servers")
	assert.Equal(t, 2, x.NMissing())
	assert.True(t, x.InProgress())

	item, ok, err := pdc.GetWork(server1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pd.Extract, item.Kind)

	require.NoError(t, x.SendSubgraph(server1, &work.Subgraph{
		Resources: []work.ResourceNode{{SpaceID: 1, ObjectID: 1, TypeName: "widget"}},
	}, true, 1))
	assert.Nil(t, got, "still waiting on server2")
	assert.Equal(t, 1, x.NMissing())

	require.NoError(t, x.SendSubgraph(server2, nil, false, 1))
	require.NotNil(t, got)
	assert.Equal(t, 0, x.NMissing())
	assert.False(t, x.InProgress())
	assert.Len(t, got.Resources, 1)
}

// TestGraphCarriesRequestMapAndSubsetEdges checks the seed derives a
// REQUEST edge from a client's RDE (pointing at the space's managing
// PD), a MAP edge from a declared space-to-space derivation, and that
// merging a subgraph synthesizes a SUBSET edge per contributed
// resource.
func TestGraphCarriesRequestMapAndSubsetEdges(t *testing.T) {
	pdc, spc, _, x := newFixture(t)
	root, _, err := pdc.Allocate(0, "root", 0)
	require.NoError(t, err)
	fileServer, _, err := pdc.Allocate(0, "file-server", 0)
	require.NoError(t, err)
	blockServer, _, err := pdc.Allocate(0, "block-server", 0)
	require.NoError(t, err)
	client, _, err := pdc.Allocate(0, "client", 0)
	require.NoError(t, err)

	fileSpace, _, err := spc.Register(fileServer, badge.CapUserBase, 1, "file")
	require.NoError(t, err)
	blockSpace, _, err := spc.Register(blockServer, badge.CapUserBase+1, 2, "block")
	require.NoError(t, err)

	sp, err := spc.Get(fileSpace)
	require.NoError(t, err)
	sp.SetMapsTo(&blockSpace)

	require.NoError(t, pdc.ShareRDE(client, badge.CapUserBase, fileSpace, 1))

	var got *work.Graph
	require.NoError(t, x.Dump(root, func(g *work.Graph) { got = g }))
	require.Nil(t, got)

	require.NoError(t, x.SendSubgraph(fileServer, &work.Subgraph{
		Resources: []work.ResourceNode{{SpaceID: fileSpace, ObjectID: 3, TypeName: "file"}},
	}, true, 1))
	require.NoError(t, x.SendSubgraph(blockServer, nil, false, 1))
	require.NotNil(t, got)

	var request, mapped, subset bool
	for _, e := range got.Edges {
		switch e.Kind {
		case work.EdgeRequest:
			if e.PDID == client && e.SpaceID == fileSpace && e.TargetPDID == fileServer {
				request = true
			}
		case work.EdgeMap:
			if e.SpaceID == fileSpace && e.TargetSpaceID == blockSpace {
				mapped = true
			}
		case work.EdgeSubset:
			if e.SpaceID == fileSpace && e.ObjectID == 3 {
				subset = true
			}
		}
	}
	assert.True(t, request, "missing REQUEST edge client -> file server")
	assert.True(t, mapped, "missing MAP edge file space -> block space")
	assert.True(t, subset, "missing SUBSET edge for contributed resource")
}

func TestDumpRejectsWhileAlreadyInProgress(t *testing.T) {
	pdc, spc, _, x := newFixture(t)
	root, _, err := pdc.Allocate(0, "root", 0)
	require.NoError(t, err)
	server, _, err := pdc.Allocate(0, "server", 0)
	require.NoError(t, err)
	_, _, err = spc.Register(server, badge.CapUserBase, 1, "widgets")
	require.NoError(t, err)

	require.NoError(t, x.Dump(root, nil))
	err = x.Dump(root, nil)
	assert.Equal(t, rmerr.OperationInProgress, rmerr.CodeOf(err))
}

func TestDumpRejectsWhileTerminationInProgress(t *testing.T) {
	pdc, spc, cas, x := newFixture(t)
	root, _, err := pdc.Allocate(0, "root", 0)
	require.NoError(t, err)
	server, _, err := pdc.Allocate(0, "server", 0)
	require.NoError(t, err)
	client, _, err := pdc.Allocate(0, "client", 0)
	require.NoError(t, err)

	spaceID, _, err := spc.Register(server, badge.CapUserBase, 1, "files")
	require.NoError(t, err)
	b := badge.Badge{CapType: badge.CapUserBase, SpaceID: spaceID, ObjectID: 1, ClientPDID: client}
	require.NoError(t, pdc.SendCap(client, b, false, nil))

	// client's termination enqueues a critical FREE item on the still-
	// live server and defers its reply, leaving a termination in flight.
	require.NoError(t, cas.Terminate(client, true, func() {}))
	require.True(t, cas.TerminationInProgress())

	err = x.Dump(root, nil)
	assert.Equal(t, rmerr.OperationInProgress, rmerr.CodeOf(err))
}
