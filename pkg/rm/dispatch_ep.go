package rm

import (
	"github.com/cuemby/gpirm/pkg/badge"
	"github.com/cuemby/gpirm/pkg/rmerr"
)

// BadgeEPArgs is the payload for an EP "badge" op: mint a new badged
// copy of an existing endpoint into a target PD.
type BadgeEPArgs struct {
	TargetPDID uint32
}

// ForgeEPArgs is the payload for an EP "forge" op, reserved for
// trusted test setup.
type ForgeEPArgs struct {
	ExistingRawEndpoint uint64
}

// AllocateEPResult additionally carries the raw endpoint token back to
// the allocating client, alongside the usual object id and badge.
type AllocateEPResult struct {
	AllocateResult
	RawEndpoint uint64
}

func (r *Reactor) dispatchEP(msg Message, reply ReplyFunc) {
	capType := badge.CapEP

	if msg.Badge.IsAllocEntry() {
		switch msg.Op {
		case "allocate":
			id, b, raw, err := r.EP.Allocate(msg.Badge.ClientPDID)
			if err != nil {
				r.finish(reply, errReply(err), capType)
				return
			}
			r.finish(reply, okReply(AllocateEPResult{AllocateResult{ObjectID: id, Badge: b}, raw}), capType)
		case "forge":
			args, ok := msg.Payload.(ForgeEPArgs)
			if !ok {
				r.finish(reply, errReply(rmerr.New(rmerr.BadBadge, "forge: bad payload")), capType)
				return
			}
			id, b, err := r.EP.Forge(args.ExistingRawEndpoint, msg.Badge.ClientPDID)
			if err != nil {
				r.finish(reply, errReply(err), capType)
				return
			}
			r.finish(reply, okReply(AllocateResult{ObjectID: id, Badge: b}), capType)
		default:
			r.finish(reply, errReply(rmerr.New(rmerr.WrongType, "ep alloc entry: unknown op %q", msg.Op)), capType)
		}
		return
	}

	id := msg.Badge.ObjectID
	switch msg.Op {
	case "disconnect":
		r.finish(reply, errReply(r.EP.Disconnect(id)), capType)
	case "get_raw_endpoint":
		raw, err := r.EP.GetRawEndpoint(id)
		if err != nil {
			r.finish(reply, errReply(err), capType)
			return
		}
		r.finish(reply, okReply(raw), capType)
	case "badge":
		args, ok := msg.Payload.(BadgeEPArgs)
		if !ok {
			r.finish(reply, errReply(rmerr.New(rmerr.BadBadge, "badge: bad payload")), capType)
			return
		}
		b, err := r.EP.Badge(id, args.TargetPDID)
		if err != nil {
			r.finish(reply, errReply(err), capType)
			return
		}
		if err := r.PD.GiveResource(args.TargetPDID, b); err != nil {
			r.finish(reply, errReply(err), capType)
			return
		}
		r.finish(reply, okReply(b), capType)
	default:
		r.finish(reply, errReply(rmerr.New(rmerr.BadBadge, "ep: unknown op %q", msg.Op)), capType)
	}
}
