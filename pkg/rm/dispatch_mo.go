package rm

import (
	"github.com/cuemby/gpirm/pkg/badge"
	"github.com/cuemby/gpirm/pkg/rmerr"
)

// AllocateMOArgs is the payload for an MO "allocate" op.
type AllocateMOArgs struct {
	NumPages uint32
	PageBits uint8
}

// ConnectMOArgs is the payload for an MO "connect" op: obtain a badged
// capability to an MO the caller doesn't yet hold.
type ConnectMOArgs struct {
	TargetID uint32
}

// AllocateResult is the common shape of every component's allocate
// reply: the new object's id and its minted capability badge.
type AllocateResult struct {
	ObjectID uint32
	Badge    badge.Badge
}

func (r *Reactor) dispatchMO(msg Message, reply ReplyFunc) {
	capType := badge.CapMO

	if msg.Badge.IsAllocEntry() {
		switch args := msg.Payload.(type) {
		case AllocateMOArgs:
			id, b, err := r.MO.Allocate(msg.Badge.ClientPDID, args.NumPages, args.PageBits)
			if err != nil {
				r.finish(reply, errReply(err), capType)
				return
			}
			r.finish(reply, okReply(AllocateResult{ObjectID: id, Badge: b}), capType)
		case ConnectMOArgs:
			b, err := r.MO.Connect(msg.Badge.ClientPDID, args.TargetID)
			if err != nil {
				r.finish(reply, errReply(err), capType)
				return
			}
			r.finish(reply, okReply(AllocateResult{ObjectID: args.TargetID, Badge: b}), capType)
		default:
			r.finish(reply, errReply(rmerr.New(rmerr.BadBadge, "mo alloc entry: unknown payload for op %q", msg.Op)), capType)
		}
		return
	}

	id := msg.Badge.ObjectID
	switch msg.Op {
	case "disconnect":
		if err := r.MO.Disconnect(id); err != nil {
			r.finish(reply, errReply(err), capType)
			return
		}
		r.finish(reply, okReply(nil), capType)
	case "delete":
		if err := r.MO.Delete(id); err != nil {
			r.finish(reply, errReply(err), capType)
			return
		}
		r.finish(reply, okReply(nil), capType)
	default:
		r.finish(reply, errReply(rmerr.New(rmerr.BadBadge, "mo: unknown op %q", msg.Op)), capType)
	}
}
