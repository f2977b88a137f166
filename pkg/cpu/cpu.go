package cpu

import (
	"sync"

	"github.com/cuemby/gpirm/pkg/ads"
	"github.com/cuemby/gpirm/pkg/badge"
	"github.com/cuemby/gpirm/pkg/mo"
	"github.com/cuemby/gpirm/pkg/rescomp"
	"github.com/cuemby/gpirm/pkg/rmerr"
)

// State is a CPU's position in the new → configured → running →
// stopped machine.
type State int

const (
	New State = iota
	Configured
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case New:
		return "new"
	case Configured:
		return "configured"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Registers is the architectural register file, addressed by name so
// this port carries no architecture-specific layout.
type Registers map[string]uint64

// VirtOps is the set of virtualization passthroughs a CPU may support.
// The default implementation does nothing and fails every op with
// INVALID_STATE: this port has no hypervisor backing and these exist
// only so one can be plugged in.
type VirtOps interface {
	InjectIRQ(irq uint32) error
	AckVPPI(vppi uint32) error
	ReadVCPURegs() (Registers, error)
	Elevate() error
}

type noopVirtOps struct{}

func (noopVirtOps) InjectIRQ(uint32) error {
	return rmerr.New(rmerr.InvalidState, "no virtualization backend configured")
}

func (noopVirtOps) AckVPPI(uint32) error {
	return rmerr.New(rmerr.InvalidState, "no virtualization backend configured")
}

func (noopVirtOps) ReadVCPURegs() (Registers, error) {
	return nil, rmerr.New(rmerr.InvalidState, "no virtualization backend configured")
}

func (noopVirtOps) Elevate() error {
	return rmerr.New(rmerr.InvalidState, "no virtualization backend configured")
}

// Object is the CPU record.
type Object struct {
	ID               uint32
	OwningPD         uint32
	BoundADS         uint32
	BoundIPCBufMO    uint32
	BoundIPCBufVAddr uint64
	CNodeGuard       uint64
	FaultEP          uint32
	Priority         uint8
	TLSBase          uint64
	Regs             Registers
	Virt             VirtOps

	mu    sync.Mutex
	state State
}

func (o *Object) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Component is the CPU resource component.
type Component struct {
	base             *rescomp.Component[*Object]
	adsc             *ads.Component
	moc              *mo.Component
	forceBindFailure bool
}

// NewComponent constructs the CPU component.
func NewComponent(adsc *ads.Component, moc *mo.Component) *Component {
	return &Component{
		base: rescomp.New[*Object](badge.CapCPU, 0),
		adsc: adsc,
		moc:  moc,
	}
}

// SetForceBindFailureForTest makes every subsequent ChangeVspace bind
// step fail. It exists only to exercise change_vspace's revert path
// and must never be called outside tests.
func (c *Component) SetForceBindFailureForTest(fail bool) { c.forceBindFailure = fail }

// Allocate creates a new, unconfigured CPU owned by clientPDID.
func (c *Component) Allocate(clientPDID uint32) (uint32, badge.Badge, error) {
	obj := &Object{OwningPD: clientPDID, Regs: make(Registers), Virt: noopVirtOps{}, state: New}
	id, b, err := c.base.Allocate(clientPDID, 0, obj, false, c.onDelete)
	if err != nil {
		return 0, badge.Badge{}, err
	}
	obj.ID = id
	return id, b, nil
}

// Get returns the CPU object for id.
func (c *Component) Get(id uint32) (*Object, error) { return c.base.GetByID(id) }

// Inc and Dec adjust a CPU's own refcount, held by the PD it is bound
// to.
func (c *Component) Inc(id uint32) error { return c.base.Inc(id) }
func (c *Component) Dec(id uint32) error { return c.base.Dec(id) }

// Configure binds adsID and ipcBufMOID to the CPU and records its
// cspace/fault/priority configuration, taking the new → configured
// transition. Both bound resources are refcounted against the CPU for
// as long as it holds them.
func (c *Component) Configure(id uint32, adsID uint32, cnodeGuard uint64, faultEP uint32, ipcBufMOID uint32, ipcBufVAddr uint64, prio uint8) error {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return err
	}

	obj.mu.Lock()
	if obj.state != New {
		obj.mu.Unlock()
		return rmerr.New(rmerr.InvalidState, "cpu %d: configure requires state new, have %s", id, obj.state)
	}
	obj.mu.Unlock()

	if err := c.adsc.Inc(adsID); err != nil {
		return err
	}
	if err := c.moc.Inc(ipcBufMOID); err != nil {
		_ = c.adsc.Dec(adsID)
		return err
	}

	obj.mu.Lock()
	obj.BoundADS = adsID
	obj.BoundIPCBufMO = ipcBufMOID
	obj.BoundIPCBufVAddr = ipcBufVAddr
	obj.CNodeGuard = cnodeGuard
	obj.FaultEP = faultEP
	obj.Priority = prio
	obj.state = Configured
	obj.mu.Unlock()
	return nil
}

// SetTLSBase records the thread-local-storage base pointer.
func (c *Component) SetTLSBase(id uint32, base uint64) error {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return err
	}
	obj.mu.Lock()
	obj.TLSBase = base
	obj.mu.Unlock()
	return nil
}

// WriteRegisters overwrites the CPU's register file. If resume is set,
// a stopped CPU transitions to running as part of the same call.
func (c *Component) WriteRegisters(id uint32, regs Registers, resume bool) error {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return err
	}

	obj.mu.Lock()
	defer obj.mu.Unlock()
	if obj.state == New {
		return rmerr.New(rmerr.InvalidState, "cpu %d: write_registers requires state >= configured", id)
	}
	for k, v := range regs {
		obj.Regs[k] = v
	}
	if resume {
		if obj.state != Stopped && obj.state != Running {
			return rmerr.New(rmerr.InvalidState, "cpu %d: resume requires state stopped, have %s", id, obj.state)
		}
		obj.state = Running
	}
	return nil
}

// ReadRegisters returns a copy of the CPU's register file.
func (c *Component) ReadRegisters(id uint32) (Registers, error) {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return nil, err
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	out := make(Registers, len(obj.Regs))
	for k, v := range obj.Regs {
		out[k] = v
	}
	return out, nil
}

// Start transitions a configured CPU to running.
func (c *Component) Start(id uint32) error {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return err
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	if obj.state != Configured {
		return rmerr.New(rmerr.InvalidState, "cpu %d: start requires state configured, have %s", id, obj.state)
	}
	obj.state = Running
	return nil
}

// Stop transitions a running CPU to stopped.
func (c *Component) Stop(id uint32) error {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return err
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	if obj.state != Running {
		return rmerr.New(rmerr.InvalidState, "cpu %d: stop requires state running, have %s", id, obj.state)
	}
	obj.state = Stopped
	return nil
}

// Resume transitions a stopped CPU back to running.
func (c *Component) Resume(id uint32) error {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return err
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	if obj.state != Stopped {
		return rmerr.New(rmerr.InvalidState, "cpu %d: resume requires state stopped, have %s", id, obj.state)
	}
	obj.state = Running
	return nil
}

// bindVSpace is the seam a kernel-level vspace rebind would occupy.
func (c *Component) bindVSpace(uint32, uint32) error {
	if c.forceBindFailure {
		return rmerr.New(rmerr.InvalidState, "vspace rebind failed")
	}
	return nil
}

// ChangeVspace atomically rebinds the CPU to newADSID: the new ADS's
// refcount is incremented, the bind is attempted, and only once it
// commits is the old ADS's refcount decremented. A failed bind reverts
// the increment and leaves the CPU bound to its old ADS.
func (c *Component) ChangeVspace(id uint32, newADSID uint32) error {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return err
	}

	obj.mu.Lock()
	oldADSID := obj.BoundADS
	obj.mu.Unlock()

	if err := c.adsc.Inc(newADSID); err != nil {
		return err
	}

	if err := c.bindVSpace(oldADSID, newADSID); err != nil {
		_ = c.adsc.Dec(newADSID)
		return err
	}

	obj.mu.Lock()
	obj.BoundADS = newADSID
	obj.mu.Unlock()

	if oldADSID != 0 {
		_ = c.adsc.Dec(oldADSID)
	}
	return nil
}

// RemoveFromRT force-destroys a CPU, used by the cascade engine.
func (c *Component) RemoveFromRT(id uint32) error { return c.base.RemoveFromRT(id) }

func (c *Component) onDelete(_ uint32, obj *Object) {
	if obj.BoundADS != 0 {
		_ = c.adsc.Dec(obj.BoundADS)
	}
	if obj.BoundIPCBufMO != 0 {
		_ = c.moc.Dec(obj.BoundIPCBufMO)
	}
}

// ForEach visits every live CPU.
func (c *Component) ForEach(fn func(id uint32, obj *Object)) { c.base.ForEach(fn) }

// Len returns the number of live CPUs.
func (c *Component) Len() int { return c.base.Len() }
