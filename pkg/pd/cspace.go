package pd

import "github.com/cuemby/gpirm/pkg/rmerr"

// cspace is the per-PD cnode slot allocator backing next_slot/free_slot.
// It is deliberately simpler than the object-id
// registry in pkg/registry: a slot carries no value of its own, only
// whether it is occupied.
type cspace struct {
	next     uint32
	freeList []uint32
	occupied map[uint32]bool
}

const maxCNodeSlots = 1 << 12

func newCSpace() cspace {
	return cspace{next: 1, occupied: make(map[uint32]bool)}
}

// NextSlot allocates and returns the next free cnode slot index.
func (c *Component) NextSlot(id uint32) (uint32, error) {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return 0, err
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()

	cs := &obj.cspace
	if len(cs.freeList) > 0 {
		slot := cs.freeList[len(cs.freeList)-1]
		cs.freeList = cs.freeList[:len(cs.freeList)-1]
		cs.occupied[slot] = true
		return slot, nil
	}
	if cs.next >= maxCNodeSlots {
		return 0, rmerr.New(rmerr.OutOfSlots, "pd %d: cspace exhausted", id)
	}
	slot := cs.next
	cs.next++
	cs.occupied[slot] = true
	return slot, nil
}

// FreeSlot releases a cnode slot index back to the free list.
func (c *Component) FreeSlot(id uint32, slot uint32) error {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return err
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()

	cs := &obj.cspace
	if !cs.occupied[slot] {
		return rmerr.New(rmerr.NotFound, "pd %d: slot %d not occupied", id, slot)
	}
	delete(cs.occupied, slot)
	cs.freeList = append(cs.freeList, slot)
	return nil
}

// ClearSlot removes whatever capability a slot holds without returning
// the slot index to the free list, for the case where the RM revokes a
// cap in place but the client still owns the slot itself.
func (c *Component) ClearSlot(id uint32, slot uint32) error {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return err
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()

	if !obj.cspace.occupied[slot] {
		return rmerr.New(rmerr.NotFound, "pd %d: slot %d not occupied", id, slot)
	}
	return nil
}
