package pd

import "github.com/cuemby/gpirm/pkg/badge"

// RDEEntry is one row of a PD's request-directory table:
// "this PD knows how to request resources of this type/space".
type RDEEntry struct {
	CapType        badge.CapType
	SpaceID        uint16
	ServerEndpoint uint64
}

// ShareRDE installs (or overwrites) the RDE entry for (capType,
// spaceID) on a PD.
func (c *Component) ShareRDE(id uint32, capType badge.CapType, spaceID uint16, serverEndpoint uint64) error {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return err
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	row, ok := obj.rde[capType]
	if !ok {
		row = make(map[uint16]RDEEntry)
		obj.rde[capType] = row
	}
	row[spaceID] = RDEEntry{CapType: capType, SpaceID: spaceID, ServerEndpoint: serverEndpoint}
	return nil
}

// RemoveRDE drops the RDE entry for (capType, spaceID). It does not
// touch any resource the PD already holds from that space.
func (c *Component) RemoveRDE(id uint32, capType badge.CapType, spaceID uint16) error {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return err
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	if row, ok := obj.rde[capType]; ok {
		delete(row, spaceID)
	}
	return nil
}

// LookupRDE returns the RDE entry for (capType, spaceID), if any.
func (c *Component) LookupRDE(id uint32, capType badge.CapType, spaceID uint16) (RDEEntry, bool, error) {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return RDEEntry{}, false, err
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	row, ok := obj.rde[capType]
	if !ok {
		return RDEEntry{}, false, nil
	}
	e, ok := row[spaceID]
	return e, ok, nil
}

// HasRDEForSpace reports whether the PD has any RDE entry naming
// spaceID, regardless of cap_type — used by the cascade engine to find
// dependents of a destroyed space.
func (c *Component) HasRDEForSpace(id uint32, spaceID uint16) (bool, error) {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return false, err
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	for _, row := range obj.rde {
		if _, ok := row[spaceID]; ok {
			return true, nil
		}
	}
	return false, nil
}

// RemoveRDEsForSpace drops every RDE entry naming spaceID.
func (c *Component) RemoveRDEsForSpace(id uint32, spaceID uint16) error {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return err
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	for _, row := range obj.rde {
		delete(row, spaceID)
	}
	return nil
}

// AllRDEs returns a snapshot of every RDE entry the PD holds, used by
// the model-extraction graph seed to derive REQUEST edges.
func (c *Component) AllRDEs(id uint32) ([]RDEEntry, error) {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return nil, err
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	var out []RDEEntry
	for _, row := range obj.rde {
		for _, e := range row {
			out = append(out, e)
		}
	}
	return out, nil
}

// HoldsInSpace returns the hold entries the PD has in spaceID,
// likewise used to find dependents of a destroyed space.
func (c *Component) HoldsInSpace(id uint32, spaceID uint16) ([]HoldEntry, error) {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return nil, err
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	var out []HoldEntry
	for k, h := range obj.holds {
		if k.SpaceID == spaceID {
			out = append(out, h)
		}
	}
	return out, nil
}

// RemoveHoldsInSpace drops every hold entry the PD has in spaceID,
// without touching the owning component's refcount (the cascade engine
// has already dec-ref'd the underlying resource directly).
func (c *Component) RemoveHoldsInSpace(id uint32, spaceID uint16) error {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return err
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	for k := range obj.holds {
		if k.SpaceID == spaceID {
			delete(obj.holds, k)
		}
	}
	return nil
}
