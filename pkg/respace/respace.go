package respace

import (
	"sync"

	"github.com/cuemby/gpirm/pkg/badge"
	"github.com/cuemby/gpirm/pkg/rescomp"
)

// Space is the resource-space record.
type Space struct {
	ID              uint16
	ResourceTypeTag badge.CapType
	ManagingPDID    uint32
	ServerEndpoint  uint64
	TypeName        string

	mu     sync.Mutex
	mapsTo *uint16
}

// MapsTo returns the space this space's resources derive from, if any
// has been declared.
func (s *Space) MapsTo() (uint16, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mapsTo == nil {
		return 0, false
	}
	return *s.mapsTo, true
}

// SetMapsTo declares (or clears, passing nil) the space this space's
// resources map to.
func (s *Space) SetMapsTo(target *uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mapsTo = target
}

// Component is the Resource-Space component. Its registry is keyed by
// space_id directly (rather than a separately-allocated object_id)
// since a space's id is the same number every other component's
// badge.SpaceID field refers to.
type Component struct {
	base *rescomp.Component[*Space]
}

// NewComponent constructs the Resource-Space component.
func NewComponent() *Component {
	return &Component{base: rescomp.New[*Space](badge.CapResSpc, 0)}
}

// Register creates a new space of resourceTypeTag managed by
// managingPDID, returning its allocated space_id and capability badge.
func (c *Component) Register(managingPDID uint32, resourceTypeTag badge.CapType, serverEndpoint uint64, typeName string) (uint16, badge.Badge, error) {
	sp := &Space{
		ResourceTypeTag: resourceTypeTag,
		ManagingPDID:    managingPDID,
		ServerEndpoint:  serverEndpoint,
		TypeName:        typeName,
	}
	id, b, err := c.base.Allocate(managingPDID, 0, sp, false, nil)
	if err != nil {
		return 0, badge.Badge{}, err
	}
	sp.ID = uint16(id)
	return sp.ID, b, nil
}

// RegisterBuiltin registers one of the well-known built-in spaces
// (mo/ads/cpu/ep/pd) under a caller-chosen space_id at RM boot, rather
// than letting the registry allocate one, since built-in space ids are
// fixed by convention.
func (c *Component) RegisterBuiltin(spaceID uint16, resourceTypeTag badge.CapType, typeName string) error {
	sp := &Space{ID: spaceID, ResourceTypeTag: resourceTypeTag, TypeName: typeName}
	return c.base.Registry.InsertWithID(uint32(spaceID), sp, nil)
}

// Get returns the space record for id.
func (c *Component) Get(id uint16) (*Space, error) { return c.base.GetByID(uint32(id)) }

// Inc and Dec adjust a space's own refcount, held by its managing PD.
func (c *Component) Inc(id uint16) error { return c.base.Inc(uint32(id)) }
func (c *Component) Dec(id uint16) error { return c.base.Dec(uint32(id)) }

// RemoveFromRT force-destroys a space, used by the cascade engine when
// its managing PD terminates.
func (c *Component) RemoveFromRT(id uint16) error { return c.base.RemoveFromRT(uint32(id)) }

// ForEach visits every live space.
func (c *Component) ForEach(fn func(id uint16, sp *Space)) {
	c.base.ForEach(func(id uint32, sp *Space) { fn(uint16(id), sp) })
}

// Len returns the number of live spaces.
func (c *Component) Len() int { return c.base.Len() }
