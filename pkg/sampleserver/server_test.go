package sampleserver_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/gpirm/pkg/bootcfg"
	"github.com/cuemby/gpirm/pkg/pd"
	"github.com/cuemby/gpirm/pkg/rm"
	"github.com/cuemby/gpirm/pkg/sampleserver"
	"github.com/cuemby/gpirm/pkg/work"
)

func newReactor(t *testing.T) *rm.Reactor {
	t.Helper()
	info := bootcfg.Default()
	info.UntypedRegions = []bootcfg.UntypedRegion{{SizeBits: 16}}
	r, err := rm.Boot(info)
	require.NoError(t, err)
	return r
}

// newServer boots an RM and starts a sample server in describe-only
// mode (no containerd socket), mirroring how a CI environment without
// a running daemon would exercise it.
func newServer(t *testing.T) (*rm.Reactor, *sampleserver.Server, uint32) {
	t.Helper()
	r := newReactor(t)
	pdID, _, err := r.PD.Allocate(r.RootPDID, "sample-server", 0)
	require.NoError(t, err)
	s, err := sampleserver.Start(r, pdID, "")
	require.NoError(t, err)
	return r, s, pdID
}

func TestAllocateGivesResourceToClient(t *testing.T) {
	r, s, _ := newServer(t)

	clientID, _, err := r.PD.Allocate(r.RootPDID, "client", 0)
	require.NoError(t, err)

	id, b, err := s.Allocate(context.Background(), clientID, "docker.io/library/alpine:latest", nil)
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Equal(t, sampleserver.ResourceType, b.CapType)
	assert.Equal(t, clientID, b.ClientPDID)

	holds, err := r.PD.Holds(clientID)
	require.NoError(t, err)
	require.Len(t, holds, 1)
	assert.Equal(t, id, holds[0].ObjectID)
}

func TestFreeDeletesOnceUnreferenced(t *testing.T) {
	r, s, _ := newServer(t)

	clientID, _, err := r.PD.Allocate(r.RootPDID, "client", 0)
	require.NoError(t, err)

	id, _, err := s.Allocate(context.Background(), clientID, "docker.io/library/alpine:latest", nil)
	require.NoError(t, err)

	require.NoError(t, s.Free(id, clientID))

	sub := s.Subgraph()
	assert.Empty(t, sub.Resources)
}

func TestSubgraphReflectsLiveContainers(t *testing.T) {
	r, s, _ := newServer(t)

	clientID, _, err := r.PD.Allocate(r.RootPDID, "client", 0)
	require.NoError(t, err)

	id, _, err := s.Allocate(context.Background(), clientID, "docker.io/library/alpine:latest", nil)
	require.NoError(t, err)

	sub := s.Subgraph()
	require.Len(t, sub.Resources, 1)
	assert.Equal(t, id, sub.Resources[0].ObjectID)
	require.Len(t, sub.Edges, 1)
	assert.Equal(t, clientID, sub.Edges[0].PDID)
}

func TestWorkLoopHandlesFree(t *testing.T) {
	r, s, pdID := newServer(t)
	require.NoError(t, s.Run())
	defer s.Stop()

	clientID, _, err := r.PD.Allocate(r.RootPDID, "client", 0)
	require.NoError(t, err)

	id, _, err := s.Allocate(context.Background(), clientID, "docker.io/library/alpine:latest", nil)
	require.NoError(t, err)

	require.NoError(t, r.PD.Enqueue(pdID, pd.WorkItem{
		Kind:       pd.Free,
		ObjectIDs:  []uint32{id},
		ClientPDID: clientID,
	}))

	require.Eventually(t, func() bool {
		sub := s.Subgraph()
		return len(sub.Resources) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestWorkLoopHandlesExtract(t *testing.T) {
	r, s, pdID := newServer(t)
	require.NoError(t, s.Run())
	defer s.Stop()

	clientID, _, err := r.PD.Allocate(r.RootPDID, "client", 0)
	require.NoError(t, err)
	_, _, err = s.Allocate(context.Background(), clientID, "docker.io/library/alpine:latest", nil)
	require.NoError(t, err)

	got := make(chan *work.Graph, 1)
	require.NoError(t, r.Extract.Dump(pdID, func(g *work.Graph) { got <- g }))

	select {
	case g := <-got:
		require.Len(t, g.Resources, 1)
		assert.Equal(t, sampleserver.TypeName, g.Resources[0].TypeName)
	case <-time.After(time.Second):
		t.Fatal("dump did not complete")
	}
}
