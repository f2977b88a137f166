package pd

import (
	"sync"

	"github.com/cuemby/gpirm/pkg/ads"
	"github.com/cuemby/gpirm/pkg/badge"
	"github.com/cuemby/gpirm/pkg/cpu"
	"github.com/cuemby/gpirm/pkg/ep"
	"github.com/cuemby/gpirm/pkg/rescomp"
	"github.com/cuemby/gpirm/pkg/rmerr"
)

// State is a PD's position in its own new → configured → running →
// deleting → deleted machine.
type State int

const (
	New State = iota
	Configured
	Running
	Deleting
	Deleted
)

func (s State) String() string {
	switch s {
	case New:
		return "new"
	case Configured:
		return "configured"
	case Running:
		return "running"
	case Deleting:
		return "deleting"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Object is the PD record.
type Object struct {
	ID            uint32
	ImageName     string
	ExitCode      int32
	DeletionDepth int
	ToDelete      bool

	BoundADS   uint32
	BoundCPU   uint32
	FaultEP    uint32
	InitDataMO uint32

	// runtime_setup inputs, stashed for diagnostics/dump only — acting
	// on them is a kernel/loader concern out of scope here.
	Argv          []string
	StackTop      uint64
	EntryPoint    uint64
	IPCBufVAddr   uint64
	InitDataVAddr uint64

	notify chan struct{}

	mu       sync.Mutex
	state    State
	deleting bool

	cspace cspace
	holds  map[holdKey]HoldEntry
	rde    map[badge.CapType]map[uint16]RDEEntry
	links  map[uint32]bool
	work   []WorkItem
}

// State returns the PD's current lifecycle state.
func (o *Object) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// NotifyChan returns the channel the PD's server loop selects on to
// learn it has work to pull.
func (o *Object) NotifyChan() <-chan struct{} { return o.notify }

func (o *Object) signal() {
	select {
	case o.notify <- struct{}{}:
	default:
		// Already signaled and not yet drained; get_work drains the
		// whole queue per wake so this is never lost work.
	}
}

// Component is the PD resource component.
type Component struct {
	base *rescomp.Component[*Object]
	adsc *ads.Component
	cpuc *cpu.Component
	epc  *ep.Component
}

// NewComponent constructs the PD component.
func NewComponent(adsc *ads.Component, cpuc *cpu.Component, epc *ep.Component) *Component {
	return &Component{
		base: rescomp.New[*Object](badge.CapPD, 0),
		adsc: adsc,
		cpuc: cpuc,
		epc:  epc,
	}
}

// Allocate creates a new PD owned (i.e. the returned badge is held) by
// parentPDID, with its own cspace, init frame, notification, and work
// queues.
func (c *Component) Allocate(parentPDID uint32, imageName string, initDataMOID uint32) (uint32, badge.Badge, error) {
	obj := &Object{
		ImageName:  imageName,
		InitDataMO: initDataMOID,
		state:      New,
		notify:     make(chan struct{}, 1),
		cspace:     newCSpace(),
		holds:      make(map[holdKey]HoldEntry),
		rde:        make(map[badge.CapType]map[uint16]RDEEntry),
		links:      make(map[uint32]bool),
	}

	id, b, err := c.base.Allocate(parentPDID, 0, obj, false, c.onDelete)
	if err != nil {
		return 0, badge.Badge{}, err
	}
	obj.ID = id
	return id, b, nil
}

// Get returns the PD object for id.
func (c *Component) Get(id uint32) (*Object, error) { return c.base.GetByID(id) }

// Inc and Dec adjust a PD's own refcount (held by its parent via
// link_child, and by anyone else tracking it).
func (c *Component) Inc(id uint32) error { return c.base.Inc(id) }
func (c *Component) Dec(id uint32) error { return c.base.Dec(id) }

// RemoveFromRT force-destroys a PD, firing its onDelete (step 4 of the
// cascade algorithm: freeing PD-internal resources). The cascade
// engine calls this after it has finished steps 1–3.
func (c *Component) RemoveFromRT(id uint32) error { return c.base.RemoveFromRT(id) }

// BindADS records the PD's own bound address space, incrementing its
// refcount for as long as the PD holds it.
func (c *Component) BindADS(id uint32, adsID uint32) error {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return err
	}
	if err := c.adsc.Inc(adsID); err != nil {
		return err
	}
	obj.mu.Lock()
	obj.BoundADS = adsID
	obj.mu.Unlock()
	return nil
}

// BindCPU records the PD's own bound CPU, incrementing its refcount.
func (c *Component) BindCPU(id uint32, cpuID uint32) error {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return err
	}
	if err := c.cpuc.Inc(cpuID); err != nil {
		return err
	}
	obj.mu.Lock()
	obj.BoundCPU = cpuID
	obj.mu.Unlock()
	return nil
}

// BindFaultEP records the PD's fault endpoint, incrementing its
// refcount (disconnect mirrors ep.Component.Disconnect).
func (c *Component) BindFaultEP(id uint32, epID uint32) error {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return err
	}
	if _, err := c.epc.Badge(epID, id); err != nil {
		return err
	}
	obj.mu.Lock()
	obj.FaultEP = epID
	obj.mu.Unlock()
	return nil
}

// RuntimeSetup records the image's argv/stack/entry/IPC-buffer layout
// and moves the PD from new to configured. Acting on
// these values — actually placing argv, setting up TLS, writing CPU
// registers — is the caller's job via pkg/cpu; this only records the
// inputs that decision is made from.
func (c *Component) RuntimeSetup(id uint32, argv []string, stackTop, entryPoint, ipcBufVAddr, initDataVAddr uint64) error {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return err
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	if obj.state != New {
		return rmerr.New(rmerr.InvalidState, "pd %d: runtime_setup requires state new, have %s", id, obj.state)
	}
	obj.Argv = argv
	obj.StackTop = stackTop
	obj.EntryPoint = entryPoint
	obj.IPCBufVAddr = ipcBufVAddr
	obj.InitDataVAddr = initDataVAddr
	obj.state = Configured
	return nil
}

// MarkRunning transitions a configured PD to running, once the RM
// considers it dispatching.
func (c *Component) MarkRunning(id uint32) error {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return err
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	if obj.state != Configured {
		return rmerr.New(rmerr.InvalidState, "pd %d: cannot mark running from state %s", id, obj.state)
	}
	obj.state = Running
	return nil
}

// MarkDeleting flags the PD as undergoing cascade termination,
// returning OPERATION_IN_PROGRESS if it already is (the re-entrancy
// guard cascade's algorithm depends on).
func (c *Component) MarkDeleting(id uint32) error {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return err
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	if obj.deleting {
		return rmerr.New(rmerr.OperationInProgress, "pd %d termination already in progress", id)
	}
	obj.deleting = true
	obj.state = Deleting
	return nil
}

// IsDeleting reports whether the PD is mid-termination.
func (o *Object) IsDeleting() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.deleting
}

// ToDeletePending reports whether the cascade sweep still owes this PD
// a termination pass, and at what depth.
func (o *Object) ToDeletePending() (bool, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ToDelete, o.DeletionDepth
}

// MarkToDelete stamps the PD as doomed at the given cascade depth,
// for the sweep to pick up later.
func (c *Component) MarkToDelete(id uint32, depth int) error {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return err
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	if obj.ToDelete {
		return nil
	}
	obj.ToDelete = true
	obj.DeletionDepth = depth
	return nil
}

// SetExitCode records a PD's exit code.
func (c *Component) SetExitCode(id uint32, code int32) error {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return err
	}
	obj.mu.Lock()
	obj.ExitCode = code
	obj.mu.Unlock()
	return nil
}

func (c *Component) onDelete(_ uint32, obj *Object) {
	obj.mu.Lock()
	adsID, cpuID, epID := obj.BoundADS, obj.BoundCPU, obj.FaultEP
	close(obj.notify)
	obj.mu.Unlock()

	if adsID != 0 {
		_ = c.adsc.Dec(adsID)
	}
	if cpuID != 0 {
		_ = c.cpuc.Dec(cpuID)
	}
	if epID != 0 {
		_ = c.epc.Disconnect(epID)
	}
}

// ForEach visits every live PD.
func (c *Component) ForEach(fn func(id uint32, obj *Object)) { c.base.ForEach(fn) }

// Len returns the number of live PDs.
func (c *Component) Len() int { return c.base.Len() }
