package rm

import (
	"github.com/cuemby/gpirm/pkg/badge"
	"github.com/cuemby/gpirm/pkg/cpu"
	"github.com/cuemby/gpirm/pkg/rmerr"
)

// ConfigureCPUArgs is the payload for a CPU "configure" op.
type ConfigureCPUArgs struct {
	ADSID       uint32
	CNodeGuard  uint64
	FaultEP     uint32
	IPCBufMOID  uint32
	IPCBufVAddr uint64
	Priority    uint8
}

// WriteRegistersArgs is the payload for a CPU "write_registers" op.
type WriteRegistersArgs struct {
	Regs   cpu.Registers
	Resume bool
}

// ChangeVspaceArgs is the payload for a CPU "change_vspace" op.
type ChangeVspaceArgs struct {
	NewADSID uint32
}

func (r *Reactor) dispatchCPU(msg Message, reply ReplyFunc) {
	capType := badge.CapCPU

	if msg.Badge.IsAllocEntry() {
		if msg.Op != "allocate" {
			r.finish(reply, errReply(rmerr.New(rmerr.WrongType, "cpu alloc entry only accepts allocate, got %q", msg.Op)), capType)
			return
		}
		id, b, err := r.CPU.Allocate(msg.Badge.ClientPDID)
		if err != nil {
			r.finish(reply, errReply(err), capType)
			return
		}
		r.finish(reply, okReply(AllocateResult{ObjectID: id, Badge: b}), capType)
		return
	}

	id := msg.Badge.ObjectID
	switch msg.Op {
	case "configure":
		args, ok := msg.Payload.(ConfigureCPUArgs)
		if !ok {
			r.finish(reply, errReply(rmerr.New(rmerr.BadBadge, "configure: bad payload")), capType)
			return
		}
		err := r.CPU.Configure(id, args.ADSID, args.CNodeGuard, args.FaultEP, args.IPCBufMOID, args.IPCBufVAddr, args.Priority)
		r.finish(reply, errReply(err), capType)
	case "set_tls_base":
		base, _ := msg.Payload.(uint64)
		err := r.CPU.SetTLSBase(id, base)
		r.finish(reply, errReply(err), capType)
	case "write_registers":
		args, ok := msg.Payload.(WriteRegistersArgs)
		if !ok {
			r.finish(reply, errReply(rmerr.New(rmerr.BadBadge, "write_registers: bad payload")), capType)
			return
		}
		err := r.CPU.WriteRegisters(id, args.Regs, args.Resume)
		r.finish(reply, errReply(err), capType)
	case "read_registers":
		regs, err := r.CPU.ReadRegisters(id)
		if err != nil {
			r.finish(reply, errReply(err), capType)
			return
		}
		r.finish(reply, okReply(regs), capType)
	case "start":
		r.finish(reply, errReply(r.CPU.Start(id)), capType)
	case "stop":
		r.finish(reply, errReply(r.CPU.Stop(id)), capType)
	case "resume":
		r.finish(reply, errReply(r.CPU.Resume(id)), capType)
	case "change_vspace":
		args, ok := msg.Payload.(ChangeVspaceArgs)
		if !ok {
			r.finish(reply, errReply(rmerr.New(rmerr.BadBadge, "change_vspace: bad payload")), capType)
			return
		}
		r.finish(reply, errReply(r.CPU.ChangeVspace(id, args.NewADSID)), capType)
	default:
		r.finish(reply, errReply(rmerr.New(rmerr.BadBadge, "cpu: unknown op %q", msg.Op)), capType)
	}
}
