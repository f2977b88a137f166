package ep

import (
	"sync"
	"sync/atomic"

	"github.com/cuemby/gpirm/pkg/badge"
	"github.com/cuemby/gpirm/pkg/rescomp"
	"github.com/cuemby/gpirm/pkg/rmerr"
)

// Object is the EP record.
type Object struct {
	ID          uint32
	RawEndpoint uint64
	OwningPD    uint32

	mu sync.Mutex
}

// Component is the Endpoint resource component.
type Component struct {
	base   *rescomp.Component[*Object]
	nextEP uint64
}

// NewComponent constructs the EP component.
func NewComponent() *Component {
	return &Component{base: rescomp.New[*Object](badge.CapEP, 0)}
}

// Allocate creates a new endpoint owned by clientPDID, returning both
// its capability badge and the raw endpoint token a client would hold
// in its own cspace.
func (c *Component) Allocate(clientPDID uint32) (uint32, badge.Badge, uint64, error) {
	raw := atomic.AddUint64(&c.nextEP, 1)
	obj := &Object{RawEndpoint: raw, OwningPD: clientPDID}

	id, b, err := c.base.Allocate(clientPDID, 0, obj, false, nil)
	if err != nil {
		return 0, badge.Badge{}, 0, err
	}
	obj.ID = id
	return id, b, raw, nil
}

// Disconnect drops one reference to an endpoint.
func (c *Component) Disconnect(id uint32) error { return c.base.Dec(id) }

// Get returns the EP object for id.
func (c *Component) Get(id uint32) (*Object, error) { return c.base.GetByID(id) }

// GetRawEndpoint returns the kernel-level endpoint token backing id.
func (c *Component) GetRawEndpoint(id uint32) (uint64, error) {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return 0, err
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	return obj.RawEndpoint, nil
}

// Badge mints a new badged capability to an existing endpoint on
// behalf of targetPDID, incrementing its refcount. The caller is
// responsible for registering the new badge in the target PD's hold
// registry.
func (c *Component) Badge(id uint32, targetPDID uint32) (badge.Badge, error) {
	if err := c.base.Inc(id); err != nil {
		return badge.Badge{}, err
	}
	b := badge.Badge{CapType: badge.CapEP, SpaceID: 0, ObjectID: id, ClientPDID: targetPDID}
	if !b.Valid() {
		_ = c.base.Dec(id)
		return badge.Badge{}, rmerr.New(rmerr.BadBadge, "badge for ep %d is malformed", id)
	}
	return b, nil
}

// Forge registers an endpoint the RM did not itself allocate — a
// kernel endpoint handed in from outside, typically in test setup —
// and mints a badge for it the same as Allocate would.
func (c *Component) Forge(existingRawEndpoint uint64, clientPDID uint32) (uint32, badge.Badge, error) {
	obj := &Object{RawEndpoint: existingRawEndpoint, OwningPD: clientPDID}
	id, b, err := c.base.Allocate(clientPDID, 0, obj, false, nil)
	if err != nil {
		return 0, badge.Badge{}, err
	}
	obj.ID = id
	return id, b, nil
}

// RemoveFromRT force-destroys an endpoint, used by the cascade engine.
func (c *Component) RemoveFromRT(id uint32) error { return c.base.RemoveFromRT(id) }

// ForEach visits every live endpoint.
func (c *Component) ForEach(fn func(id uint32, obj *Object)) { c.base.ForEach(fn) }

// Len returns the number of live endpoints.
func (c *Component) Len() int { return c.base.Len() }
