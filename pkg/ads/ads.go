package ads

import (
	"sort"
	"sync"

	"github.com/cuemby/gpirm/pkg/badge"
	"github.com/cuemby/gpirm/pkg/mo"
	"github.com/cuemby/gpirm/pkg/rescomp"
	"github.com/cuemby/gpirm/pkg/rmerr"
)

// Rights is a bitmask of access permissions on a VMR.
type Rights uint8

const (
	Read Rights = 1 << iota
	Write
	Exec
)

// broader reports whether r grants every permission other grants (used
// to resolve which VMR a page shared between two ELF segments belongs
// to).
func (r Rights) broader(other Rights) bool {
	return r&other == other
}

// VMR is one Virtual Memory Reservation within an address space.
// VMRs are keyed, and looked up, by their start address.
type VMR struct {
	VAddr     uint64
	NumPages  uint32
	PageBits  uint8
	Rights    Rights
	Cacheable bool
	TypeTag   string
	MOID      uint32 // 0 if unattached
	Offset    uint64
}

func (v *VMR) size() uint64 { return uint64(v.NumPages) << v.PageBits }
func (v *VMR) end() uint64  { return v.VAddr + v.size() }

// AddressSpace is the ADS object.
type AddressSpace struct {
	ID       uint32
	OwningPD uint32

	mu       sync.Mutex
	vmrs     map[uint64]*VMR
	nextFree uint64
}

const defaultBaseVAddr = 0x10000000

func newAddressSpace(owningPD uint32) *AddressSpace {
	return &AddressSpace{
		OwningPD: owningPD,
		vmrs:     make(map[uint64]*VMR),
		nextFree: defaultBaseVAddr,
	}
}

// sortedVMRs returns the address space's VMRs ordered by start address.
// Caller must hold a.mu.
func (a *AddressSpace) sortedVMRs() []*VMR {
	out := make([]*VMR, 0, len(a.vmrs))
	for _, v := range a.vmrs {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VAddr < out[j].VAddr })
	return out
}

// overlaps reports whether [start, start+size) collides with any
// existing VMR. Caller must hold a.mu.
func (a *AddressSpace) overlaps(start, size uint64) bool {
	end := start + size
	for _, v := range a.vmrs {
		if start < v.end() && v.VAddr < end {
			return true
		}
	}
	return false
}

// placeFree finds the next gap of at least size bytes at or after
// a.nextFree. Caller must hold a.mu.
func (a *AddressSpace) placeFree(size uint64) uint64 {
	candidate := a.nextFree
	for {
		if !a.overlaps(candidate, size) {
			return candidate
		}
		candidate += size
	}
}

// Reserve creates a new, unattached VMR. If start is nil, the address
// space picks a free range. Fails OVERLAP if the requested range
// collides with an existing VMR.
func (a *AddressSpace) Reserve(start *uint64, numPages uint32, pageBits uint8, typeTag string, rights Rights, cacheable bool) (uint64, error) {
	if numPages == 0 || pageBits == 0 {
		return 0, rmerr.New(rmerr.InvalidState, "invalid VMR size: numPages=%d pageBits=%d", numPages, pageBits)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	size := uint64(numPages) << pageBits
	var vaddr uint64
	if start != nil {
		if a.overlaps(*start, size) {
			return 0, rmerr.New(rmerr.Overlap, "VMR [%#x, %#x) overlaps an existing reservation", *start, *start+size)
		}
		vaddr = *start
	} else {
		vaddr = a.placeFree(size)
	}

	a.vmrs[vaddr] = &VMR{
		VAddr:     vaddr,
		NumPages:  numPages,
		PageBits:  pageBits,
		Rights:    rights,
		Cacheable: cacheable,
		TypeTag:   typeTag,
	}
	if vaddr+size > a.nextFree {
		a.nextFree = vaddr + size
	}
	return vaddr, nil
}

// AttachRequest describes an attach call. If VMR is nil, a fresh VMR
// is reserved using the other fields before attaching.
type AttachRequest struct {
	VMR       *uint64
	NumPages  uint32
	PageBits  uint8
	TypeTag   string
	Rights    Rights
	Cacheable bool
	Offset    uint64
}

// Attach binds an MO to a VMR, reserving one first if req.VMR is nil.
// The MO's refcount is incremented to account for the attachment.
func (a *AddressSpace) Attach(moc *mo.Component, moID uint32, req AttachRequest) (uint64, error) {
	if _, err := moc.Get(moID); err != nil {
		return 0, err
	}

	var vaddr uint64
	if req.VMR != nil {
		vaddr = *req.VMR
		a.mu.Lock()
		v, ok := a.vmrs[vaddr]
		a.mu.Unlock()
		if !ok {
			return 0, rmerr.New(rmerr.NotFound, "no VMR reserved at %#x", vaddr)
		}
		if v.MOID != 0 {
			return 0, rmerr.New(rmerr.InvalidState, "VMR at %#x already attached", vaddr)
		}
	} else {
		id, err := a.Reserve(nil, req.NumPages, req.PageBits, req.TypeTag, req.Rights, req.Cacheable)
		if err != nil {
			return 0, err
		}
		vaddr = id
	}

	if err := moc.Inc(moID); err != nil {
		return 0, err
	}
	if err := moc.MarkAttached(moID); err != nil {
		_ = moc.Dec(moID)
		return 0, err
	}

	a.mu.Lock()
	v := a.vmrs[vaddr]
	v.MOID = moID
	v.Offset = req.Offset
	a.mu.Unlock()

	return vaddr, nil
}

// Remove detaches (if attached) and releases the VMR at vaddr,
// restoring the address space so the range can be re-reserved.
func (a *AddressSpace) Remove(moc *mo.Component, vaddr uint64) error {
	a.mu.Lock()
	v, ok := a.vmrs[vaddr]
	if !ok {
		a.mu.Unlock()
		return rmerr.New(rmerr.NotFound, "no VMR at %#x", vaddr)
	}
	moID := v.MOID
	delete(a.vmrs, vaddr)
	a.mu.Unlock()

	if moID != 0 {
		if err := moc.MarkDetached(moID); err != nil {
			return err
		}
		if err := moc.Dec(moID); err != nil {
			return err
		}
	}
	return nil
}

// ShallowCopy produces a new address-space snapshot, owned by the same
// PD and not registered in the component, carrying
// every VMR of a except those whose start address is in omit, with the
// backing MOs' refcounts bumped for the new attachments the copy
// implies (source's ads_component shallow_copy semantics).
func (a *AddressSpace) ShallowCopy(moc *mo.Component, omit map[uint64]bool) (*AddressSpace, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cp := newAddressSpace(a.OwningPD)
	for addr, v := range a.vmrs {
		if omit[addr] {
			continue
		}
		vCopy := *v
		cp.vmrs[addr] = &vCopy
		if addr+v.size() > cp.nextFree {
			cp.nextFree = addr + v.size()
		}
		if v.MOID != 0 {
			if err := moc.Inc(v.MOID); err != nil {
				return nil, err
			}
			if err := moc.MarkAttached(v.MOID); err != nil {
				return nil, err
			}
		}
	}
	return cp, nil
}

// Segment is an already-parsed ELF PT_LOAD segment: parsing, ELF
// header validation, and relocation are kernel/loader concerns out of
// scope here.
type Segment struct {
	VAddr    uint64
	NumPages uint32
	PageBits uint8
	Rights   Rights
}

// LoadImage places each segment into its own VMR, resolving
// page-granularity overlap between segments by giving the shared page
// to whichever segment has the broader rights. It returns the VMR
// start addresses in segment order.
func (a *AddressSpace) LoadImage(segments []Segment) ([]uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	starts := make([]uint64, len(segments))
	for i, seg := range segments {
		size := uint64(seg.NumPages) << seg.PageBits

		// Look for an existing VMR this segment's page-rounded range
		// overlaps; if found and this segment's rights are broader,
		// widen that VMR's rights rather than erroring, mirroring
		// gpi_elf.c's merge-by-broader-rights behavior.
		merged := false
		for _, v := range a.vmrs {
			if seg.VAddr < v.end() && v.VAddr < seg.VAddr+size {
				if seg.Rights.broader(v.Rights) {
					v.Rights = seg.Rights
				}
				starts[i] = v.VAddr
				merged = true
				break
			}
		}
		if merged {
			continue
		}

		if a.overlaps(seg.VAddr, size) {
			return nil, rmerr.New(rmerr.Overlap, "ELF segment [%#x, %#x) overlaps a non-ELF VMR", seg.VAddr, seg.VAddr+size)
		}

		a.vmrs[seg.VAddr] = &VMR{
			VAddr:    seg.VAddr,
			NumPages: seg.NumPages,
			PageBits: seg.PageBits,
			Rights:   seg.Rights,
			TypeTag:  "elf",
		}
		if seg.VAddr+size > a.nextFree {
			a.nextFree = seg.VAddr + size
		}
		starts[i] = seg.VAddr
	}
	return starts, nil
}

// VMRs returns a snapshot of the address space's reservations, ordered
// by start address.
func (a *AddressSpace) VMRs() []VMR {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]VMR, 0, len(a.vmrs))
	for _, v := range a.sortedVMRs() {
		out = append(out, *v)
	}
	return out
}

// Component is the Address-Space resource component.
type Component struct {
	base *rescomp.Component[*AddressSpace]
	moc  *mo.Component
}

// NewComponent constructs the ADS component.
func NewComponent(moc *mo.Component) *Component {
	return &Component{base: rescomp.New[*AddressSpace](badge.CapADS, 0), moc: moc}
}

// Allocate creates a new, empty address space owned by clientPDID.
func (c *Component) Allocate(clientPDID uint32) (uint32, badge.Badge, error) {
	as := newAddressSpace(clientPDID)
	id, b, err := c.base.Allocate(clientPDID, 0, as, false, c.onDelete)
	if err != nil {
		return 0, badge.Badge{}, err
	}
	as.ID = id
	return id, b, nil
}

// Get returns the address space for id.
func (c *Component) Get(id uint32) (*AddressSpace, error) { return c.base.GetByID(id) }

// Inc and Dec adjust an address space's own refcount (held by CPUs
// bound to it).
func (c *Component) Inc(id uint32) error { return c.base.Inc(id) }
func (c *Component) Dec(id uint32) error { return c.base.Dec(id) }

// RemoveFromRT force-destroys an address space, used by the cascade
// engine.
func (c *Component) RemoveFromRT(id uint32) error { return c.base.RemoveFromRT(id) }

func (c *Component) onDelete(_ uint32, as *AddressSpace) {
	as.mu.Lock()
	vmrs := as.sortedVMRs()
	as.mu.Unlock()
	for _, v := range vmrs {
		if v.MOID != 0 {
			_ = c.moc.MarkDetached(v.MOID)
			_ = c.moc.Dec(v.MOID)
		}
	}
}

// ForEach visits every live address space.
func (c *Component) ForEach(fn func(id uint32, as *AddressSpace)) { c.base.ForEach(fn) }

// Len returns the number of live address spaces.
func (c *Component) Len() int { return c.base.Len() }
