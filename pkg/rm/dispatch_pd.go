package rm

import (
	"github.com/cuemby/gpirm/pkg/badge"
	"github.com/cuemby/gpirm/pkg/pd"
	"github.com/cuemby/gpirm/pkg/rmerr"
	"github.com/cuemby/gpirm/pkg/work"
)

// AllocatePDArgs is the payload for a PD "allocate" op.
type AllocatePDArgs struct {
	ImageName    string
	InitDataMOID uint32
}

// RuntimeSetupArgs is the payload for a PD "runtime_setup" op.
type RuntimeSetupArgs struct {
	Argv          []string
	StackTop      uint64
	EntryPoint    uint64
	IPCBufVAddr   uint64
	InitDataVAddr uint64
}

// BindArgs is the payload shared by bind_ads/bind_cpu/bind_fault_ep.
type BindArgs struct {
	TargetID uint32
}

// SendCapArgs is the payload for a PD "send_cap" op.
type SendCapArgs struct {
	TargetPDID uint32
	Cap        badge.Badge
	IsCoreCap  bool
	IncRef     func() error
}

// GiveResourceArgs is the payload for a PD "give_resource" op.
type GiveResourceArgs struct {
	RecipientPDID uint32
	Cap           badge.Badge
}

// ShareRDEArgs is the payload for a PD "share_rde" op.
type ShareRDEArgs struct {
	CapType        badge.CapType
	SpaceID        uint16
	ServerEndpoint uint64
}

// RemoveRDEArgs is the payload for a PD "remove_rde" op.
type RemoveRDEArgs struct {
	CapType badge.CapType
	SpaceID uint16
}

// FreeSlotArgs/ClearSlotArgs name the cspace slot a "free_slot" or
// "clear_slot" op acts on.
type FreeSlotArgs struct{ Slot uint32 }
type ClearSlotArgs struct{ Slot uint32 }

// ExitArgs is the payload for a PD "exit" op: the
// process's own requested termination, always user-initiated.
type ExitArgs struct {
	ExitCode int32
}

// TerminateArgs is the payload for a PD "terminate" op: another PD
// tearing this one down.
type TerminateArgs struct {
	UserInitiated bool
}

// FinishWorkArgs is the payload for a PD "finish_work" op.
type FinishWorkArgs struct {
	Kind      pd.WorkKind
	NCritical int
}

// SendSubgraphArgs is the payload for a PD "send_subgraph" op.
type SendSubgraphArgs struct {
	Sub       *work.Subgraph
	HasData   bool
	NRequests int
}

// LinkChildArgs is the payload for a PD "link_child" op.
type LinkChildArgs struct {
	ChildPDID uint32
}

func (r *Reactor) dispatchPD(msg Message, reply ReplyFunc) {
	capType := badge.CapPD

	if msg.Badge.IsAllocEntry() {
		if msg.Op != "allocate" {
			r.finish(reply, errReply(rmerr.New(rmerr.WrongType, "pd alloc entry only accepts allocate, got %q", msg.Op)), capType)
			return
		}
		args, ok := msg.Payload.(AllocatePDArgs)
		if !ok {
			r.finish(reply, errReply(rmerr.New(rmerr.BadBadge, "allocate: bad payload")), capType)
			return
		}
		id, b, err := r.PD.Allocate(msg.Badge.ClientPDID, args.ImageName, args.InitDataMOID)
		if err != nil {
			r.finish(reply, errReply(err), capType)
			return
		}
		r.finish(reply, okReply(AllocateResult{ObjectID: id, Badge: b}), capType)
		return
	}

	id := msg.Badge.ObjectID

	switch msg.Op {
	case "runtime_setup":
		args, ok := msg.Payload.(RuntimeSetupArgs)
		if !ok {
			r.finish(reply, errReply(rmerr.New(rmerr.BadBadge, "runtime_setup: bad payload")), capType)
			return
		}
		err := r.PD.RuntimeSetup(id, args.Argv, args.StackTop, args.EntryPoint, args.IPCBufVAddr, args.InitDataVAddr)
		r.finish(reply, errReply(err), capType)
	case "mark_running":
		r.finish(reply, errReply(r.PD.MarkRunning(id)), capType)
	case "bind_ads":
		args, ok := msg.Payload.(BindArgs)
		if !ok {
			r.finish(reply, errReply(rmerr.New(rmerr.BadBadge, "bind_ads: bad payload")), capType)
			return
		}
		r.finish(reply, errReply(r.PD.BindADS(id, args.TargetID)), capType)
	case "bind_cpu":
		args, ok := msg.Payload.(BindArgs)
		if !ok {
			r.finish(reply, errReply(rmerr.New(rmerr.BadBadge, "bind_cpu: bad payload")), capType)
			return
		}
		r.finish(reply, errReply(r.PD.BindCPU(id, args.TargetID)), capType)
	case "bind_fault_ep":
		args, ok := msg.Payload.(BindArgs)
		if !ok {
			r.finish(reply, errReply(rmerr.New(rmerr.BadBadge, "bind_fault_ep: bad payload")), capType)
			return
		}
		r.finish(reply, errReply(r.PD.BindFaultEP(id, args.TargetID)), capType)
	case "next_slot":
		slot, err := r.PD.NextSlot(id)
		if err != nil {
			r.finish(reply, errReply(err), capType)
			return
		}
		r.finish(reply, okReply(slot), capType)
	case "free_slot":
		args, ok := msg.Payload.(FreeSlotArgs)
		if !ok {
			r.finish(reply, errReply(rmerr.New(rmerr.BadBadge, "free_slot: bad payload")), capType)
			return
		}
		r.finish(reply, errReply(r.PD.FreeSlot(id, args.Slot)), capType)
	case "clear_slot":
		args, ok := msg.Payload.(ClearSlotArgs)
		if !ok {
			r.finish(reply, errReply(rmerr.New(rmerr.BadBadge, "clear_slot: bad payload")), capType)
			return
		}
		r.finish(reply, errReply(r.PD.ClearSlot(id, args.Slot)), capType)
	case "send_cap":
		args, ok := msg.Payload.(SendCapArgs)
		if !ok {
			r.finish(reply, errReply(rmerr.New(rmerr.BadBadge, "send_cap: bad payload")), capType)
			return
		}
		if err := r.PD.SendCap(args.TargetPDID, args.Cap, args.IsCoreCap, args.IncRef); err != nil {
			r.finish(reply, errReply(err), capType)
			return
		}
		// A server-managed resource crossing PDs is echoed to its
		// managing server as a SEND work item, and the sender's reply
		// waits for the server's finish_work ack.
		if args.Cap.CapType >= badge.CapUserBase {
			if sp, err := r.ResSpace.Get(args.Cap.SpaceID); err == nil {
				if _, err := r.PD.Get(sp.ManagingPDID); err == nil {
					_ = r.PD.Enqueue(sp.ManagingPDID, pd.WorkItem{
						Kind:       pd.Send,
						ObjectIDs:  []uint32{args.Cap.ObjectID},
						SpaceIDs:   []uint16{args.Cap.SpaceID},
						ClientPDID: args.TargetPDID,
						IsCritical: true,
					})
					r.Sends.Defer(sp.ManagingPDID, func() {
						r.finish(reply, okReply(nil), capType)
					})
					return
				}
			}
		}
		r.finish(reply, okReply(nil), capType)
	case "give_resource":
		args, ok := msg.Payload.(GiveResourceArgs)
		if !ok {
			r.finish(reply, errReply(rmerr.New(rmerr.BadBadge, "give_resource: bad payload")), capType)
			return
		}
		r.finish(reply, errReply(r.PD.GiveResource(args.RecipientPDID, args.Cap)), capType)
	case "share_rde":
		args, ok := msg.Payload.(ShareRDEArgs)
		if !ok {
			r.finish(reply, errReply(rmerr.New(rmerr.BadBadge, "share_rde: bad payload")), capType)
			return
		}
		r.finish(reply, errReply(r.PD.ShareRDE(id, args.CapType, args.SpaceID, args.ServerEndpoint)), capType)
	case "remove_rde":
		args, ok := msg.Payload.(RemoveRDEArgs)
		if !ok {
			r.finish(reply, errReply(rmerr.New(rmerr.BadBadge, "remove_rde: bad payload")), capType)
			return
		}
		r.finish(reply, errReply(r.PD.RemoveRDE(id, args.CapType, args.SpaceID)), capType)
	case "link_child":
		args, ok := msg.Payload.(LinkChildArgs)
		if !ok {
			r.finish(reply, errReply(rmerr.New(rmerr.BadBadge, "link_child: bad payload")), capType)
			return
		}
		if err := r.PD.LinkChild(id, args.ChildPDID); err != nil {
			r.finish(reply, errReply(err), capType)
			return
		}
		r.finish(reply, errReply(r.PD.Inc(args.ChildPDID)), capType)
	case "get_work":
		item, ok, err := r.PD.GetWork(id)
		if err != nil {
			r.finish(reply, errReply(err), capType)
			return
		}
		if !ok {
			r.finish(reply, okReply(nil), capType)
			return
		}
		r.finish(reply, okReply(item), capType)
	case "finish_work":
		args, ok := msg.Payload.(FinishWorkArgs)
		if !ok {
			r.finish(reply, errReply(rmerr.New(rmerr.BadBadge, "finish_work: bad payload")), capType)
			return
		}
		if err := r.PD.FinishWork(id, args.Kind, args.NCritical); err != nil {
			r.finish(reply, errReply(err), capType)
			return
		}
		// SEND acks release deferred cross-PD transfer replies; FREE and
		// DESTROY acks feed the termination critical counter.
		if args.Kind == pd.Send {
			r.Sends.Ack(id, args.NCritical)
		} else {
			r.Cascade.AckCriticalWork(id, args.NCritical)
		}
		r.finish(reply, okReply(nil), capType)
	case "send_subgraph":
		args, ok := msg.Payload.(SendSubgraphArgs)
		if !ok {
			r.finish(reply, errReply(rmerr.New(rmerr.BadBadge, "send_subgraph: bad payload")), capType)
			return
		}
		err := r.Extract.SendSubgraph(id, args.Sub, args.HasData, args.NRequests)
		r.finish(reply, errReply(err), capType)
	case "dump":
		err := r.Extract.Dump(id, func(g *work.Graph) {
			r.finish(reply, okReply(g), capType)
		})
		if err != nil {
			r.finish(reply, errReply(err), capType)
		}
	case "exit":
		args, _ := msg.Payload.(ExitArgs)
		_ = r.PD.SetExitCode(id, args.ExitCode)
		err := r.Cascade.Terminate(id, true, func() {
			r.finish(reply, okReply(nil), capType)
		})
		if err != nil {
			r.finish(reply, errReply(err), capType)
		}
	case "terminate":
		args, ok := msg.Payload.(TerminateArgs)
		if !ok {
			args = TerminateArgs{UserInitiated: true}
		}
		err := r.Cascade.Terminate(id, args.UserInitiated, func() {
			r.finish(reply, okReply(nil), capType)
		})
		if err != nil {
			r.finish(reply, errReply(err), capType)
		}
	default:
		r.finish(reply, errReply(rmerr.New(rmerr.BadBadge, "pd: unknown op %q", msg.Op)), capType)
	}
}
