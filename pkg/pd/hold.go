package pd

import (
	"github.com/cuemby/gpirm/pkg/badge"
	"github.com/cuemby/gpirm/pkg/rmerr"
)

// holdKey identifies a held resource within one PD's hold registry.
type holdKey struct {
	CapType  badge.CapType
	SpaceID  uint16
	ObjectID uint32
}

// HoldEntry is one row of a PD's hold registry: "this PD
// has access to this resource", plus the cspace slot it was placed in.
type HoldEntry struct {
	CapType  badge.CapType
	SpaceID  uint16
	ObjectID uint32
	Slot     uint32
}

func keyOf(b badge.Badge) holdKey {
	return holdKey{CapType: b.CapType, SpaceID: b.SpaceID, ObjectID: b.ObjectID}
}

// AddHold inserts a hold record for b at cspace slot, used directly by
// GiveResource and (after the caller's own refcount increment) by
// SendCap.
func (c *Component) AddHold(id uint32, b badge.Badge, slot uint32) error {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return err
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	obj.holds[keyOf(b)] = HoldEntry{CapType: b.CapType, SpaceID: b.SpaceID, ObjectID: b.ObjectID, Slot: slot}
	return nil
}

// RemoveHold drops a PD's hold record for b without touching any
// component's refcount — the caller is responsible for decrementing it
// first if that's the desired semantics.
func (c *Component) RemoveHold(id uint32, b badge.Badge) error {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return err
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	delete(obj.holds, keyOf(b))
	return nil
}

// HasHold reports whether the PD currently holds b.
func (c *Component) HasHold(id uint32, b badge.Badge) (bool, error) {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return false, err
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	_, ok := obj.holds[keyOf(b)]
	return ok, nil
}

// Holds returns a snapshot of every resource the PD currently holds.
func (c *Component) Holds(id uint32) ([]HoldEntry, error) {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return nil, err
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	out := make([]HoldEntry, 0, len(obj.holds))
	for _, h := range obj.holds {
		out = append(out, h)
	}
	return out, nil
}

// HoldCount returns the number of resources a PD holds.
func (c *Component) HoldCount(id uint32) (int, error) {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return 0, err
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	return len(obj.holds), nil
}

// ClearHolds empties a PD's hold registry outright, used by cascade
// after it has already dec-ref'd every held resource in its owning
// component.
func (c *Component) ClearHolds(id uint32) error {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return err
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	obj.holds = make(map[holdKey]HoldEntry)
	return nil
}

// SendCap transfers a capability into targetPDID's hold registry.
// incRef is invoked first; if it fails, no
// hold record is inserted and targetPDID is left untouched. isCoreCap
// additionally records the capability in the target's bound-ADS,
// bound-CPU or fault-EP field, chosen by its cap type.
func (c *Component) SendCap(targetPDID uint32, b badge.Badge, isCoreCap bool, incRef func() error) error {
	if _, err := c.base.GetByID(targetPDID); err != nil {
		return err
	}
	if incRef != nil {
		if err := incRef(); err != nil {
			return err
		}
	}

	slot, err := c.NextSlot(targetPDID)
	if err != nil {
		return err
	}
	if err := c.AddHold(targetPDID, b, slot); err != nil {
		return err
	}

	if isCoreCap {
		if err := c.setCoreCap(targetPDID, b); err != nil {
			return err
		}
	}
	return nil
}

func (c *Component) setCoreCap(targetPDID uint32, b badge.Badge) error {
	obj, err := c.base.GetByID(targetPDID)
	if err != nil {
		return err
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	switch b.CapType {
	case badge.CapADS:
		obj.BoundADS = b.ObjectID
	case badge.CapCPU:
		obj.BoundCPU = b.ObjectID
	case badge.CapEP:
		obj.FaultEP = b.ObjectID
	default:
		return rmerr.New(rmerr.WrongType, "cap_type %s is not a core capability", b.CapType)
	}
	return nil
}

// GiveResource records recipientPDID's hold of a badge a resource
// server has already minted and refcounted, placing it into the
// recipient's cspace.
func (c *Component) GiveResource(recipientPDID uint32, b badge.Badge) error {
	return c.SendCap(recipientPDID, b, false, nil)
}
