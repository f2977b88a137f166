package badge

import (
	"fmt"

	"github.com/cuemby/gpirm/pkg/rmerr"
)

// CapType identifies which component a badge's object belongs to.
type CapType uint8

const (
	CapNone CapType = iota
	CapResSpc
	CapMO
	CapADS
	CapCPU
	CapEP
	CapPD
	// CapUserBase is the first cap_type value available to user-defined
	// resource types registered at runtime via the Resource-Space
	// component.
	CapUserBase CapType = 32
)

func (c CapType) String() string {
	switch c {
	case CapNone:
		return "NONE"
	case CapResSpc:
		return "RESSPC"
	case CapMO:
		return "MO"
	case CapADS:
		return "ADS"
	case CapCPU:
		return "CPU"
	case CapEP:
		return "EP"
	case CapPD:
		return "PD"
	default:
		return fmt.Sprintf("USER(%d)", uint8(c))
	}
}

const (
	capTypeBits    = 8
	spaceIDBits    = 16
	objectIDBits   = 20
	clientPDIDBits = 20

	capTypeMask    = (1 << capTypeBits) - 1
	spaceIDMask    = (1 << spaceIDBits) - 1
	objectIDMask   = (1 << objectIDBits) - 1
	clientPDIDMask = (1 << clientPDIDBits) - 1

	capTypeShift    = 0
	spaceIDShift    = capTypeShift + capTypeBits
	objectIDShift   = spaceIDShift + spaceIDBits
	clientPDIDShift = objectIDShift + objectIDBits
)

// NullObj is the reserved object_id meaning "no object": either the
// allocation entry point for a component, or an explicitly absent
// reference.
const NullObj uint32 = 0

// MaxObjectID is the largest object_id a 20-bit field can hold; a
// registry returns OUT_OF_SLOTS rather than wrapping past it.
const MaxObjectID uint32 = objectIDMask

// Badge is the unpacked 4-tuple carried by every message.
type Badge struct {
	CapType    CapType
	SpaceID    uint16
	ObjectID   uint32
	ClientPDID uint32
}

// Pack encodes b into the 64-bit value the kernel attaches to a
// message, failing BAD_BADGE before mint if any field overflows its
// width or CapType is CapNone.
func Pack(b Badge) (uint64, error) {
	if b.CapType == CapNone {
		return 0, rmerr.New(rmerr.BadBadge, "cap_type must not be NONE")
	}
	if uint32(b.SpaceID) > spaceIDMask {
		return 0, rmerr.New(rmerr.BadBadge, "space_id %d exceeds %d bits", b.SpaceID, spaceIDBits)
	}
	if b.ObjectID > objectIDMask {
		return 0, rmerr.New(rmerr.BadBadge, "object_id %d exceeds %d bits", b.ObjectID, objectIDBits)
	}
	if b.ClientPDID > clientPDIDMask {
		return 0, rmerr.New(rmerr.BadBadge, "client_pd_id %d exceeds %d bits", b.ClientPDID, clientPDIDBits)
	}

	v := uint64(b.CapType)&capTypeMask<<capTypeShift |
		uint64(b.SpaceID)&spaceIDMask<<spaceIDShift |
		uint64(b.ObjectID)&objectIDMask<<objectIDShift |
		uint64(b.ClientPDID)&clientPDIDMask<<clientPDIDShift

	return v, nil
}

// Unpack splits a raw 64-bit badge back into its four fields. It never
// fails: any 64-bit value unpacks to some 4-tuple, but a badge with
// CapType CapNone should never have been minted and callers should
// treat it as BAD_BADGE.
func Unpack(v uint64) Badge {
	return Badge{
		CapType:    CapType((v >> capTypeShift) & capTypeMask),
		SpaceID:    uint16((v >> spaceIDShift) & spaceIDMask),
		ObjectID:   uint32((v >> objectIDShift) & objectIDMask),
		ClientPDID: uint32((v >> clientPDIDShift) & clientPDIDMask),
	}
}

// Valid reports whether b could have been produced by Unpack of a
// legitimately-minted badge: CapType set, and no field has stray bits
// beyond its width (always true after Unpack, but a constructed Badge
// literal may violate it).
func (b Badge) Valid() bool {
	if b.CapType == CapNone {
		return false
	}
	return uint32(b.SpaceID) <= spaceIDMask && b.ObjectID <= objectIDMask && b.ClientPDID <= clientPDIDMask
}

// IsAllocEntry reports whether the badge names the allocation /
// administrative entry point of its component (object_id == NullObj).
func (b Badge) IsAllocEntry() bool {
	return b.ObjectID == NullObj
}

// String renders a badge in the printable diagnostic form
// "cap_type_space_id_object_id@pd<client_pd_id>", e.g. "ADS_3_12@pd4".
func (b Badge) String() string {
	return fmt.Sprintf("%s_%d_%d@pd%d", b.CapType, b.SpaceID, b.ObjectID, b.ClientPDID)
}
