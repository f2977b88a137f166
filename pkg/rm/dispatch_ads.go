package rm

import (
	"github.com/cuemby/gpirm/pkg/ads"
	"github.com/cuemby/gpirm/pkg/badge"
	"github.com/cuemby/gpirm/pkg/rmerr"
)

// ReserveArgs is the payload for an ADS "reserve" op.
type ReserveArgs struct {
	Start     *uint64
	NumPages  uint32
	PageBits  uint8
	TypeTag   string
	Rights    ads.Rights
	Cacheable bool
}

// AttachArgs is the payload for an ADS "attach" op: reserve-and-attach
// in one step when VMR is nil.
type AttachArgs struct {
	MOID uint32
	ads.AttachRequest
}

// RemoveArgs is the payload for an ADS "remove" op.
type RemoveArgs struct {
	VAddr uint64
}

// ShallowCopyArgs is the payload for an ADS "shallow_copy" op.
type ShallowCopyArgs struct {
	Omit map[uint64]bool
}

// LoadImageArgs is the payload for an ADS "load_elf" op. Parsing the
// ELF file itself is out of scope; the caller supplies
// already-parsed PT_LOAD segments.
type LoadImageArgs struct {
	Segments []ads.Segment
}

func (r *Reactor) dispatchADS(msg Message, reply ReplyFunc) {
	capType := badge.CapADS

	if msg.Badge.IsAllocEntry() {
		if msg.Op != "allocate" {
			r.finish(reply, errReply(rmerr.New(rmerr.WrongType, "ads alloc entry only accepts allocate, got %q", msg.Op)), capType)
			return
		}
		id, b, err := r.ADS.Allocate(msg.Badge.ClientPDID)
		if err != nil {
			r.finish(reply, errReply(err), capType)
			return
		}
		r.finish(reply, okReply(AllocateResult{ObjectID: id, Badge: b}), capType)
		return
	}

	id := msg.Badge.ObjectID
	as, err := r.ADS.Get(id)
	if err != nil {
		r.finish(reply, errReply(err), capType)
		return
	}

	switch args := msg.Payload.(type) {
	case ReserveArgs:
		vaddr, err := as.Reserve(args.Start, args.NumPages, args.PageBits, args.TypeTag, args.Rights, args.Cacheable)
		if err != nil {
			r.finish(reply, errReply(err), capType)
			return
		}
		r.finish(reply, okReply(vaddr), capType)
	case AttachArgs:
		vaddr, err := as.Attach(r.MO, args.MOID, args.AttachRequest)
		if err != nil {
			r.finish(reply, errReply(err), capType)
			return
		}
		r.finish(reply, okReply(vaddr), capType)
	case RemoveArgs:
		if err := as.Remove(r.MO, args.VAddr); err != nil {
			r.finish(reply, errReply(err), capType)
			return
		}
		r.finish(reply, okReply(nil), capType)
	case ShallowCopyArgs:
		cp, err := as.ShallowCopy(r.MO, args.Omit)
		if err != nil {
			r.finish(reply, errReply(err), capType)
			return
		}
		r.finish(reply, okReply(cp), capType)
	case LoadImageArgs:
		starts, err := as.LoadImage(args.Segments)
		if err != nil {
			r.finish(reply, errReply(err), capType)
			return
		}
		r.finish(reply, okReply(starts), capType)
	default:
		r.finish(reply, errReply(rmerr.New(rmerr.BadBadge, "ads: unknown payload for op %q", msg.Op)), capType)
	}
}
