package rm

import (
	"github.com/cuemby/gpirm/pkg/badge"
	"github.com/cuemby/gpirm/pkg/respace"
	"github.com/cuemby/gpirm/pkg/rmerr"
)

// RegisterSpaceArgs is the payload for a resource-space "register" op:
// a server's first registration of a new user-defined resource type.
type RegisterSpaceArgs struct {
	ResourceTypeTag badge.CapType
	ServerEndpoint  uint64
	TypeName        string
}

// RegisterSpaceResult carries the newly allocated space_id and its
// capability badge back to the registering server.
type RegisterSpaceResult struct {
	SpaceID uint16
	Badge   badge.Badge
}

// SetMapsToArgs is the payload for declaring (or clearing) that a
// space's resources derive from another space's.
type SetMapsToArgs struct {
	SpaceID  uint16
	TargetID *uint16
}

func (r *Reactor) dispatchResSpc(msg Message, reply ReplyFunc) {
	capType := badge.CapResSpc

	if msg.Badge.IsAllocEntry() {
		if msg.Op != "register" {
			r.finish(reply, errReply(rmerr.New(rmerr.WrongType, "resspc alloc entry only accepts register, got %q", msg.Op)), capType)
			return
		}
		args, ok := msg.Payload.(RegisterSpaceArgs)
		if !ok {
			r.finish(reply, errReply(rmerr.New(rmerr.BadBadge, "register: bad payload")), capType)
			return
		}
		spaceID, b, err := r.ResSpace.Register(msg.Badge.ClientPDID, args.ResourceTypeTag, args.ServerEndpoint, args.TypeName)
		if err != nil {
			r.finish(reply, errReply(err), capType)
			return
		}
		// The space is itself a resource held by its managing PD;
		// the allocate-time refcount already accounts for
		// this holder, so only the hold record is added here.
		_ = r.PD.GiveResource(msg.Badge.ClientPDID, b)
		r.finish(reply, okReply(RegisterSpaceResult{SpaceID: spaceID, Badge: b}), capType)
		return
	}

	spaceID := uint16(msg.Badge.ObjectID)
	switch msg.Op {
	case "get":
		sp, err := r.ResSpace.Get(spaceID)
		if err != nil {
			r.finish(reply, errReply(err), capType)
			return
		}
		r.finish(reply, okReply(spaceSnapshot(sp)), capType)
	case "set_maps_to":
		args, ok := msg.Payload.(SetMapsToArgs)
		if !ok {
			r.finish(reply, errReply(rmerr.New(rmerr.BadBadge, "set_maps_to: bad payload")), capType)
			return
		}
		sp, err := r.ResSpace.Get(spaceID)
		if err != nil {
			r.finish(reply, errReply(err), capType)
			return
		}
		sp.SetMapsTo(args.TargetID)
		r.finish(reply, okReply(nil), capType)
	default:
		r.finish(reply, errReply(rmerr.New(rmerr.BadBadge, "resspc: unknown op %q", msg.Op)), capType)
	}
}

// SpaceSnapshot is a read-only view of a resource space, safe to hand
// back across the dispatch boundary.
type SpaceSnapshot struct {
	SpaceID         uint16
	ResourceTypeTag badge.CapType
	ManagingPDID    uint32
	ServerEndpoint  uint64
	TypeName        string
	MapsTo          *uint16
}

func spaceSnapshot(sp *respace.Space) SpaceSnapshot {
	var mapsTo *uint16
	if target, ok := sp.MapsTo(); ok {
		mapsTo = &target
	}
	return SpaceSnapshot{
		SpaceID:         sp.ID,
		ResourceTypeTag: sp.ResourceTypeTag,
		ManagingPDID:    sp.ManagingPDID,
		ServerEndpoint:  sp.ServerEndpoint,
		TypeName:        sp.TypeName,
		MapsTo:          mapsTo,
	}
}
