package rm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/gpirm/pkg/badge"
	"github.com/cuemby/gpirm/pkg/bootcfg"
	"github.com/cuemby/gpirm/pkg/pd"
	"github.com/cuemby/gpirm/pkg/rm"
	"github.com/cuemby/gpirm/pkg/rmerr"
)

// callPD issues a PD-targeted dispatch and returns the reply.
func callPD(t *testing.T, r *rm.Reactor, id uint32, op string, payload any) rm.Reply {
	t.Helper()
	return call(t, r, rm.Message{
		Badge:   badge.Badge{CapType: badge.CapPD, ObjectID: id, ClientPDID: r.RootPDID},
		Op:      op,
		Payload: payload,
	})
}

func newReactor(t *testing.T) *rm.Reactor {
	t.Helper()
	info := bootcfg.Default()
	info.UntypedRegions = []bootcfg.UntypedRegion{{SizeBits: 16}}
	r, err := rm.Boot(info)
	require.NoError(t, err)
	return r
}

func call(t *testing.T, r *rm.Reactor, msg rm.Message) rm.Reply {
	t.Helper()
	var out rm.Reply
	r.Dispatch(msg, func(rep rm.Reply) { out = rep })
	return out
}

func TestBootForgesRootPD(t *testing.T) {
	r := newReactor(t)
	assert.Equal(t, uint32(1), r.RootPDID)
	assert.Equal(t, 1, r.ObjectCounts()["pd"])
}

func TestMOAllocateConnectDisconnect(t *testing.T) {
	r := newReactor(t)

	rep := call(t, r, rm.Message{
		Badge: badge.Badge{CapType: badge.CapMO, ClientPDID: r.RootPDID},
		Op:    "allocate",
		Payload: rm.AllocateMOArgs{NumPages: 4, PageBits: 12},
	})
	require.NoError(t, rep.Err)
	alloc := rep.Data.(rm.AllocateResult)
	assert.Equal(t, badge.CapMO, alloc.Badge.CapType)

	rep = call(t, r, rm.Message{
		Badge:   badge.Badge{CapType: badge.CapMO, ClientPDID: r.RootPDID},
		Op:      "connect",
		Payload: rm.ConnectMOArgs{TargetID: alloc.ObjectID},
	})
	require.NoError(t, rep.Err)
	assert.Equal(t, alloc.ObjectID, rep.Data.(rm.AllocateResult).ObjectID)

	rep = call(t, r, rm.Message{
		Badge: badge.Badge{CapType: badge.CapMO, ObjectID: alloc.ObjectID, ClientPDID: r.RootPDID},
		Op:    "disconnect",
	})
	assert.NoError(t, rep.Err)
}

func TestDispatchRejectsInvalidBadge(t *testing.T) {
	r := newReactor(t)
	rep := call(t, r, rm.Message{Badge: badge.Badge{}, Op: "allocate"})
	require.Error(t, rep.Err)
}

func TestDispatchRejectsUserResourceTypes(t *testing.T) {
	r := newReactor(t)
	rep := call(t, r, rm.Message{
		Badge: badge.Badge{CapType: badge.CapUserBase, ClientPDID: r.RootPDID},
		Op:    "anything",
	})
	require.Error(t, rep.Err)
}

func TestPDAllocateRuntimeSetupAndExit(t *testing.T) {
	r := newReactor(t)

	rep := call(t, r, rm.Message{
		Badge:   badge.Badge{CapType: badge.CapPD, ClientPDID: r.RootPDID},
		Op:      "allocate",
		Payload: rm.AllocatePDArgs{ImageName: "child"},
	})
	require.NoError(t, rep.Err)
	childID := rep.Data.(rm.AllocateResult).ObjectID

	rep = call(t, r, rm.Message{
		Badge: badge.Badge{CapType: badge.CapPD, ObjectID: childID, ClientPDID: r.RootPDID},
		Op:    "runtime_setup",
		Payload: rm.RuntimeSetupArgs{
			Argv: []string{"/bin/child"}, StackTop: 0x8000, EntryPoint: 0x1000,
		},
	})
	require.NoError(t, rep.Err)

	rep = call(t, r, rm.Message{
		Badge:   badge.Badge{CapType: badge.CapPD, ObjectID: childID, ClientPDID: r.RootPDID},
		Op:      "mark_running",
	})
	require.NoError(t, rep.Err)

	done := make(chan rm.Reply, 1)
	r.Dispatch(rm.Message{
		Badge:   badge.Badge{CapType: badge.CapPD, ObjectID: childID, ClientPDID: childID},
		Op:      "exit",
		Payload: rm.ExitArgs{ExitCode: 7},
	}, func(rep rm.Reply) { done <- rep })

	rep = <-done
	require.NoError(t, rep.Err)
	assert.Equal(t, 0, r.Cascade.PDTerminationNMissing())
}

// TestSendCapOfServerManagedResourceDefersReply: transferring a
// server-managed resource cap enqueues a SEND work item on the
// managing server and holds the sender's reply until the server acks
// via finish_work.
func TestSendCapOfServerManagedResourceDefersReply(t *testing.T) {
	r := newReactor(t)

	rep := call(t, r, rm.Message{
		Badge:   badge.Badge{CapType: badge.CapPD, ClientPDID: r.RootPDID},
		Op:      "allocate",
		Payload: rm.AllocatePDArgs{ImageName: "file-server"},
	})
	require.NoError(t, rep.Err)
	serverID := rep.Data.(rm.AllocateResult).ObjectID

	rep = call(t, r, rm.Message{
		Badge: badge.Badge{CapType: badge.CapResSpc, ClientPDID: serverID},
		Op:    "register",
		Payload: rm.RegisterSpaceArgs{
			ResourceTypeTag: badge.CapUserBase, ServerEndpoint: 1, TypeName: "file",
		},
	})
	require.NoError(t, rep.Err)
	spaceID := rep.Data.(rm.RegisterSpaceResult).SpaceID

	rep = call(t, r, rm.Message{
		Badge:   badge.Badge{CapType: badge.CapPD, ClientPDID: r.RootPDID},
		Op:      "allocate",
		Payload: rm.AllocatePDArgs{ImageName: "recipient"},
	})
	require.NoError(t, rep.Err)
	recipientID := rep.Data.(rm.AllocateResult).ObjectID

	fileCap := badge.Badge{CapType: badge.CapUserBase, SpaceID: spaceID, ObjectID: 3, ClientPDID: recipientID}

	replied := false
	r.Dispatch(rm.Message{
		Badge:   badge.Badge{CapType: badge.CapPD, ObjectID: r.RootPDID, ClientPDID: r.RootPDID},
		Op:      "send_cap",
		Payload: rm.SendCapArgs{TargetPDID: recipientID, Cap: fileCap},
	}, func(rep rm.Reply) {
		require.NoError(t, rep.Err)
		replied = true
	})
	assert.False(t, replied, "reply must wait for the server's SEND ack")
	assert.Equal(t, 1, r.Sends.Pending(serverID))

	item, ok, err := r.PD.GetWork(serverID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pd.Send, item.Kind)
	assert.Equal(t, recipientID, item.ClientPDID)

	rep = callPD(t, r, serverID, "finish_work", rm.FinishWorkArgs{Kind: pd.Send, NCritical: 1})
	require.NoError(t, rep.Err)
	assert.True(t, replied)
	assert.Equal(t, 0, r.Sends.Pending(serverID))

	has, err := r.PD.HasHold(recipientID, fileCap)
	require.NoError(t, err)
	assert.True(t, has)
}

// TestSendCapReplyReleasedWhenServerDies covers the dead-participant
// path: the managing server terminating with a SEND ack outstanding
// must release the deferred sender anyway.
func TestSendCapReplyReleasedWhenServerDies(t *testing.T) {
	r := newReactor(t)

	rep := call(t, r, rm.Message{
		Badge:   badge.Badge{CapType: badge.CapPD, ClientPDID: r.RootPDID},
		Op:      "allocate",
		Payload: rm.AllocatePDArgs{ImageName: "file-server"},
	})
	require.NoError(t, rep.Err)
	serverID := rep.Data.(rm.AllocateResult).ObjectID

	rep = call(t, r, rm.Message{
		Badge: badge.Badge{CapType: badge.CapResSpc, ClientPDID: serverID},
		Op:    "register",
		Payload: rm.RegisterSpaceArgs{
			ResourceTypeTag: badge.CapUserBase, ServerEndpoint: 1, TypeName: "file",
		},
	})
	require.NoError(t, rep.Err)
	spaceID := rep.Data.(rm.RegisterSpaceResult).SpaceID

	rep = call(t, r, rm.Message{
		Badge:   badge.Badge{CapType: badge.CapPD, ClientPDID: r.RootPDID},
		Op:      "allocate",
		Payload: rm.AllocatePDArgs{ImageName: "recipient"},
	})
	require.NoError(t, rep.Err)
	recipientID := rep.Data.(rm.AllocateResult).ObjectID

	fileCap := badge.Badge{CapType: badge.CapUserBase, SpaceID: spaceID, ObjectID: 3, ClientPDID: recipientID}

	replied := false
	r.Dispatch(rm.Message{
		Badge:   badge.Badge{CapType: badge.CapPD, ObjectID: r.RootPDID, ClientPDID: r.RootPDID},
		Op:      "send_cap",
		Payload: rm.SendCapArgs{TargetPDID: recipientID, Cap: fileCap},
	}, func(rm.Reply) { replied = true })
	require.False(t, replied)

	require.NoError(t, r.Cascade.Terminate(serverID, false, nil))
	assert.True(t, replied)
	assert.Equal(t, 0, r.Sends.Pending(serverID))
}

// TestTerminateRejectsReentrantCascade sets up a PD holding a
// user-defined resource whose managing server never acks the
// resulting FREE work item, leaving the cascade's deferred reply
// outstanding — the window in which a second concurrent termination
// must be rejected.
func TestTerminateRejectsReentrantCascade(t *testing.T) {
	r := newReactor(t)

	rep := call(t, r, rm.Message{
		Badge:   badge.Badge{CapType: badge.CapPD, ClientPDID: r.RootPDID},
		Op:      "allocate",
		Payload: rm.AllocatePDArgs{ImageName: "server"},
	})
	require.NoError(t, rep.Err)
	serverID := rep.Data.(rm.AllocateResult).ObjectID

	rep = call(t, r, rm.Message{
		Badge: badge.Badge{CapType: badge.CapResSpc, ClientPDID: serverID},
		Op:    "register",
		Payload: rm.RegisterSpaceArgs{
			ResourceTypeTag: badge.CapUserBase, ServerEndpoint: 1, TypeName: "container",
		},
	})
	require.NoError(t, rep.Err)
	spaceID := rep.Data.(rm.RegisterSpaceResult).SpaceID

	rep = call(t, r, rm.Message{
		Badge:   badge.Badge{CapType: badge.CapPD, ClientPDID: r.RootPDID},
		Op:      "allocate",
		Payload: rm.AllocatePDArgs{ImageName: "client"},
	})
	require.NoError(t, rep.Err)
	clientID := rep.Data.(rm.AllocateResult).ObjectID

	cap := badge.Badge{CapType: badge.CapUserBase, SpaceID: spaceID, ObjectID: 1, ClientPDID: clientID}
	rep = callPD(t, r, clientID, "give_resource", rm.GiveResourceArgs{RecipientPDID: clientID, Cap: cap})
	require.NoError(t, rep.Err)

	err := r.Cascade.Terminate(clientID, true, func() {})
	require.NoError(t, err)
	require.Equal(t, 1, r.Cascade.PDTerminationNMissing())

	err = r.Cascade.Terminate(serverID, true, func() {})
	require.Error(t, err)
	assert.Equal(t, rmerr.OperationInProgress, rmerr.CodeOf(err))

	r.Cascade.AckCriticalWork(serverID, 1)
	assert.Equal(t, 0, r.Cascade.PDTerminationNMissing())
}
