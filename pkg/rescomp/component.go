package rescomp

import (
	"github.com/cuemby/gpirm/pkg/badge"
	"github.com/cuemby/gpirm/pkg/registry"
	"github.com/cuemby/gpirm/pkg/rmerr"
)

// Component is the generic scaffolding every concrete resource
// component embeds: a cap_type tag, a default resource-space id, and a
// ref-counted registry of T.
type Component[T any] struct {
	CapType        badge.CapType
	DefaultSpaceID uint16
	Registry       *registry.Registry[T]
}

// New constructs an empty component for the given cap_type.
func New[T any](capType badge.CapType, defaultSpaceID uint16) *Component[T] {
	return &Component[T]{
		CapType:        capType,
		DefaultSpaceID: defaultSpaceID,
		Registry:       registry.New[T](),
	}
}

// Allocate creates a new object, inserts it into the registry, and —
// unless forgeOnly is set — mints a badged capability naming it in the
// given resource space on behalf of clientPDID. forge_only exists
// because the RM itself creates a handful of objects (e.g. a
// root-task PD, or a resource space's own record) without needing a
// mintable capability back to itself.
func (c *Component[T]) Allocate(clientPDID uint32, spaceID uint16, value T, forgeOnly bool, onDelete registry.DeleteFunc[T]) (uint32, badge.Badge, error) {
	id, err := c.Registry.InsertNew(value, onDelete)
	if err != nil {
		return 0, badge.Badge{}, err
	}

	if forgeOnly {
		return id, badge.Badge{}, nil
	}

	if spaceID == 0 {
		spaceID = c.DefaultSpaceID
	}

	b := badge.Badge{
		CapType:    c.CapType,
		SpaceID:    spaceID,
		ObjectID:   id,
		ClientPDID: clientPDID,
	}
	if !b.Valid() {
		_ = c.Registry.Delete(id)
		return 0, badge.Badge{}, rmerr.New(rmerr.BadBadge, "minted badge for new %s object is malformed", c.CapType)
	}

	return id, b, nil
}

// GetByID looks up an object directly by id, bypassing badge
// validation (used by other components that reference by id, never by
// pointer).
func (c *Component[T]) GetByID(id uint32) (T, error) {
	n, err := c.Registry.Get(id)
	if err != nil {
		var zero T
		return zero, err
	}
	return n.Value, nil
}

// GetByBadge validates that b names this component before looking up
// the object, returning WRONG_TYPE if it doesn't.
func (c *Component[T]) GetByBadge(b badge.Badge) (T, error) {
	if b.CapType != c.CapType {
		var zero T
		return zero, rmerr.New(rmerr.WrongType, "badge names %s, component is %s", b.CapType, c.CapType)
	}
	return c.GetByID(b.ObjectID)
}

// Inc increments an object's refcount.
func (c *Component[T]) Inc(id uint32) error { return c.Registry.Inc(id) }

// Dec decrements an object's refcount, running its deletion callback
// at zero.
func (c *Component[T]) Dec(id uint32) error { return c.Registry.Dec(id) }

// RemoveFromRT force-deletes an object regardless of refcount. Used by
// the cascade engine when a managing PD's exit must tear an object
// down even though some other PD may still (erroneously, post-cascade)
// believe it holds a reference.
func (c *Component[T]) RemoveFromRT(id uint32) error { return c.Registry.Delete(id) }

// ForEach visits every live object.
func (c *Component[T]) ForEach(fn func(id uint32, value T)) {
	c.Registry.ForEach(func(n *registry.Node[T]) { fn(n.ID, n.Value) })
}

// Len returns the number of live objects.
func (c *Component[T]) Len() int { return c.Registry.Len() }
