package mo

import (
	"sync"

	"github.com/cuemby/gpirm/pkg/badge"
	"github.com/cuemby/gpirm/pkg/rescomp"
	"github.com/cuemby/gpirm/pkg/rmerr"
	"github.com/cuemby/gpirm/pkg/rmlog"
)

// FramePool is the RM's single source of physical frames. It models
// the kernel's untyped memory as a simple counted pool: real frame
// retyping and the device/page-table details are kernel concerns
// out of scope here.
type FramePool struct {
	mu        sync.Mutex
	total     uint64
	used      uint64
	nextFrame uint64
}

// NewFramePool creates a pool with totalFrames frames available.
func NewFramePool(totalFrames uint64) *FramePool {
	return &FramePool{total: totalFrames}
}

// Alloc draws n frames from the pool, returning OUT_OF_MEMORY if that
// would exceed capacity.
func (p *FramePool) Alloc(n uint64) ([]uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.used+n > p.total {
		return nil, rmerr.New(rmerr.OutOfMemory, "requested %d frames, %d available", n, p.total-p.used)
	}

	frames := make([]uint64, n)
	for i := uint64(0); i < n; i++ {
		frames[i] = p.nextFrame
		p.nextFrame++
	}
	p.used += n
	return frames, nil
}

// Free returns frames to the pool.
func (p *FramePool) Free(frames []uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.used -= uint64(len(frames))
}

// Used returns the number of frames currently allocated.
func (p *FramePool) Used() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.used
}

// Total returns the pool's total frame capacity.
func (p *FramePool) Total() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

// Object is a sequence of uniform-size physical frames.
type Object struct {
	ID          uint32
	OwningPD    uint32
	Frames      []uint64
	PageBits    uint8
	NumPages    uint32
	attachments int
	mu          sync.Mutex
}

// PageSize returns the size in bytes of one page in this object.
func (o *Object) PageSize() uint64 { return 1 << o.PageBits }

// Attached reports whether any VMR currently has this MO attached.
func (o *Object) Attached() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.attachments > 0
}

// Component is the Memory-Object resource component.
type Component struct {
	base *rescomp.Component[*Object]
	pool *FramePool
}

// NewComponent constructs the MO component over the given frame pool.
func NewComponent(pool *FramePool) *Component {
	return &Component{
		base: rescomp.New[*Object](badge.CapMO, 0),
		pool: pool,
	}
}

// Allocate carves numPages pages of 2^pageBits bytes each from the
// frame pool and registers a new MO owned by clientPDID.
func (c *Component) Allocate(clientPDID uint32, numPages uint32, pageBits uint8) (uint32, badge.Badge, error) {
	if numPages == 0 || pageBits == 0 {
		return 0, badge.Badge{}, rmerr.New(rmerr.InvalidState, "invalid MO size: numPages=%d pageBits=%d", numPages, pageBits)
	}

	frames, err := c.pool.Alloc(uint64(numPages))
	if err != nil {
		return 0, badge.Badge{}, err
	}

	obj := &Object{
		OwningPD: clientPDID,
		Frames:   frames,
		PageBits: pageBits,
		NumPages: numPages,
	}

	id, b, err := c.base.Allocate(clientPDID, 0, obj, false, c.onDelete)
	if err != nil {
		c.pool.Free(frames)
		return 0, badge.Badge{}, err
	}
	obj.ID = id
	return id, b, nil
}

// Connect mints a new badged capability to an existing MO, incrementing
// its refcount.
func (c *Component) Connect(clientPDID uint32, id uint32) (badge.Badge, error) {
	if err := c.base.Inc(id); err != nil {
		return badge.Badge{}, err
	}
	b := badge.Badge{CapType: badge.CapMO, SpaceID: 0, ObjectID: id, ClientPDID: clientPDID}
	return b, nil
}

// Disconnect drops one reference to an MO.
func (c *Component) Disconnect(id uint32) error {
	return c.base.Dec(id)
}

// Get returns the MO object for id.
func (c *Component) Get(id uint32) (*Object, error) {
	return c.base.GetByID(id)
}

// Inc and Dec are used by ADS on attach/detach: a VMR attachment
// contributes one ref to its backing MO.
func (c *Component) Inc(id uint32) error { return c.base.Inc(id) }
func (c *Component) Dec(id uint32) error { return c.base.Dec(id) }

// MarkAttached/MarkDetached track attachment count independent of
// refcount, so an explicit Delete can distinguish "still attached"
// from "implicitly unreferenced".
func (c *Component) MarkAttached(id uint32) error {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return err
	}
	obj.mu.Lock()
	obj.attachments++
	obj.mu.Unlock()
	return nil
}

func (c *Component) MarkDetached(id uint32) error {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return err
	}
	obj.mu.Lock()
	if obj.attachments > 0 {
		obj.attachments--
	}
	obj.mu.Unlock()
	return nil
}

// Delete explicitly destroys an MO, failing STILL_ATTACHED if any VMR
// has it attached. Implicit destruction via refcount (RemoveFromRT,
// called by the cascade engine, or Dec reaching zero) always succeeds
// regardless of attachment bookkeeping.
func (c *Component) Delete(id uint32) error {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return err
	}
	if obj.Attached() {
		return rmerr.New(rmerr.StillAttached, "MO %d still has live VMR attachments", id)
	}
	return c.base.RemoveFromRT(id)
}

// RemoveFromRT force-destroys an MO regardless of attachment state,
// for use by the cascade engine.
func (c *Component) RemoveFromRT(id uint32) error { return c.base.RemoveFromRT(id) }

func (c *Component) onDelete(id uint32, obj *Object) {
	c.pool.Free(obj.Frames)
	logger := rmlog.WithComponent("mo")
	logger.Debug().
		Uint32("object_id", id).
		Uint32("num_pages", obj.NumPages).
		Msg("frames freed")
}

// ForEach visits every live MO.
func (c *Component) ForEach(fn func(id uint32, obj *Object)) { c.base.ForEach(fn) }

// Len returns the number of live MOs.
func (c *Component) Len() int { return c.base.Len() }
