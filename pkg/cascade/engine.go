package cascade

import (
	"sync"

	"github.com/cuemby/gpirm/pkg/ads"
	"github.com/cuemby/gpirm/pkg/badge"
	"github.com/cuemby/gpirm/pkg/cpu"
	"github.com/cuemby/gpirm/pkg/ep"
	"github.com/cuemby/gpirm/pkg/mo"
	"github.com/cuemby/gpirm/pkg/pd"
	"github.com/cuemby/gpirm/pkg/respace"
	"github.com/cuemby/gpirm/pkg/rmerr"
	"github.com/cuemby/gpirm/pkg/rmlog"
	"github.com/cuemby/gpirm/pkg/rmmetrics"
)

// Engine drives cascading destruction across every component. It owns
// the global critical-piece counters and the single deferred-reply
// slot for termination, mirroring the RM's single in-flight
// termination invariant.
type Engine struct {
	pdc  *pd.Component
	spc  *respace.Component
	moc  *mo.Component
	adsc *ads.Component
	cpuc *cpu.Component
	epc  *ep.Component

	policy Policy
	depth  int

	mu                     sync.Mutex
	terminationInProgress  bool
	extractionInProgress   bool
	pdTerminationNMissing  int
	pendingCriticalByPD    map[uint32]int
	deferredTerminateReply func()
	onPDDeleted            func(pdID uint32)
}

// NewEngine constructs a cascade engine over every component it needs
// to walk.
func NewEngine(pdc *pd.Component, spc *respace.Component, moc *mo.Component, adsc *ads.Component, cpuc *cpu.Component, epc *ep.Component, policy Policy, depth int) *Engine {
	return &Engine{
		pdc: pdc, spc: spc, moc: moc, adsc: adsc, cpuc: cpuc, epc: epc,
		policy:              policy,
		depth:               depth,
		pendingCriticalByPD: make(map[uint32]int),
	}
}

// SetOnPDDeleted installs a hook invoked for every PD the cascade
// destroys, before the PD's record leaves the registry. The reactor
// uses it to auto-ack the dead PD's outstanding extraction and send
// deferrals, the same way creditDeadParticipant covers the engine's
// own critical counter.
func (e *Engine) SetOnPDDeleted(fn func(pdID uint32)) {
	e.mu.Lock()
	e.onPDDeleted = fn
	e.mu.Unlock()
}

// SetExtracting marks whether a model-extraction pass is in flight, so
// Terminate can reject with OPERATION_IN_PROGRESS. The extraction
// side of the mutex lives in pkg/work.
func (e *Engine) SetExtracting(inProgress bool) {
	e.mu.Lock()
	e.extractionInProgress = inProgress
	e.mu.Unlock()
}

// TerminationInProgress reports whether a termination is currently
// in flight, for the symmetric guard on dump().
func (e *Engine) TerminationInProgress() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.terminationInProgress
}

// PDTerminationNMissing returns the outstanding critical-ack count.
func (e *Engine) PDTerminationNMissing() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pdTerminationNMissing
}

// Terminate runs the six-step cascade algorithm rooted at pdID.
// onComplete is invoked once the reply can actually
// be sent: immediately, if no critical work was generated, or later
// from AckCriticalWork once the last outstanding ack arrives — the
// saved reply capability, invoked later.
func (e *Engine) Terminate(pdID uint32, userInitiated bool, onComplete func()) error {
	e.mu.Lock()
	if e.extractionInProgress || e.terminationInProgress {
		e.mu.Unlock()
		return rmerr.New(rmerr.OperationInProgress, "a termination or extraction is already in progress")
	}
	e.terminationInProgress = true
	e.mu.Unlock()

	timer := rmmetrics.NewTimer()
	e.terminateOne(pdID, userInitiated, 0)
	e.sweep(userInitiated)
	timer.ObserveDuration(rmmetrics.CascadeDuration)
	rmmetrics.CascadeCyclesTotal.Inc()

	e.mu.Lock()
	missing := e.pdTerminationNMissing
	if missing == 0 {
		e.terminationInProgress = false
	} else {
		e.deferredTerminateReply = onComplete
	}
	e.mu.Unlock()

	rmmetrics.PDTerminationMissing.Set(float64(missing))

	if missing == 0 && onComplete != nil {
		onComplete()
	}
	return nil
}

// AckCriticalWork records nCritical acknowledged critical work items
// from pdID (via finish_work) and, once the global counter reaches
// zero, fires and clears the deferred termination reply.
func (e *Engine) AckCriticalWork(pdID uint32, nCritical int) {
	e.mu.Lock()
	e.creditCritical(pdID, nCritical)
	missing := e.pdTerminationNMissing
	var reply func()
	if missing == 0 && e.terminationInProgress {
		reply = e.deferredTerminateReply
		e.deferredTerminateReply = nil
		e.terminationInProgress = false
	}
	e.mu.Unlock()

	rmmetrics.PDTerminationMissing.Set(float64(missing))
	if reply != nil {
		reply()
	}
}

// creditCritical must be called with e.mu held.
func (e *Engine) creditCritical(pdID uint32, n int) {
	if n <= 0 {
		return
	}
	if n > e.pdTerminationNMissing {
		n = e.pdTerminationNMissing
	}
	e.pdTerminationNMissing -= n
	if remaining := e.pendingCriticalByPD[pdID] - n; remaining > 0 {
		e.pendingCriticalByPD[pdID] = remaining
	} else {
		delete(e.pendingCriticalByPD, pdID)
	}
}

// addCritical must be called with e.mu held.
func (e *Engine) addCritical(pdID uint32, n int) {
	if n <= 0 {
		return
	}
	e.pdTerminationNMissing += n
	e.pendingCriticalByPD[pdID] += n
}

// creditDeadParticipant auto-acks whatever critical work was still
// outstanding against a PD the cascade is itself now destroying,
// so a server that dies with critical work queued never blocks the
// deferred reply forever.
func (e *Engine) creditDeadParticipant(pdID uint32) {
	e.mu.Lock()
	n := e.pendingCriticalByPD[pdID]
	delete(e.pendingCriticalByPD, pdID)
	if n > 0 {
		e.creditCritical(pdID, n)
	}
	missing := e.pdTerminationNMissing
	var reply func()
	if n > 0 && missing == 0 && e.terminationInProgress {
		reply = e.deferredTerminateReply
		e.deferredTerminateReply = nil
		e.terminationInProgress = false
	}
	e.mu.Unlock()

	if reply != nil {
		reply()
	}
}

func (e *Engine) decRefInOwningComponent(capType badge.CapType, objectID uint32) {
	switch capType {
	case badge.CapMO:
		_ = e.moc.Dec(objectID)
	case badge.CapADS:
		_ = e.adsc.Dec(objectID)
	case badge.CapCPU:
		_ = e.cpuc.Dec(objectID)
	case badge.CapEP:
		_ = e.epc.Disconnect(objectID)
	case badge.CapResSpc:
		_ = e.spc.Dec(uint16(objectID))
	case badge.CapPD:
		_ = e.pdc.Dec(objectID)
	default:
		// user-defined resource type: the RM itself owns no state for
		// it, the managing server does. Nothing to dec here; the
		// server learns about it via a FREE/DESTROY work item.
	}
}

// spaceCleanup tears down one managed space: it notifies the managing
// server, then strips or dooms every dependent PD per policy.
func (e *Engine) spaceCleanup(spaceID uint16, depth int, userInitiated bool, visited map[uint16]bool) {
	if visited[spaceID] {
		return
	}
	visited[spaceID] = true

	sp, err := e.spc.Get(spaceID)
	if err != nil {
		return
	}
	managingPDID := sp.ManagingPDID

	_ = e.spc.RemoveFromRT(spaceID)

	if _, err := e.pdc.Get(managingPDID); err == nil {
		_ = e.pdc.Enqueue(managingPDID, pd.WorkItem{
			Kind:       pd.Destroy,
			SpaceIDs:   []uint16{spaceID},
			IsCritical: userInitiated,
		})
		if userInitiated {
			e.mu.Lock()
			e.addCritical(managingPDID, 1)
			e.mu.Unlock()
		}
	}

	var dependents []uint32
	e.pdc.ForEach(func(otherID uint32, _ *pd.Object) {
		hasRDE, _ := e.pdc.HasRDEForSpace(otherID, spaceID)
		holds, _ := e.pdc.HoldsInSpace(otherID, spaceID)
		if hasRDE || len(holds) > 0 {
			dependents = append(dependents, otherID)
		}
	})

	for _, otherID := range dependents {
		// DependentsDirect only dooms dependents of the originally
		// terminated PD's own spaces; DependentsRecursive follows the
		// chain to the configured depth.
		if e.policy.terminatesDependents() &&
			(e.policy.isRecursiveDepth() || depth == 0) &&
			withinDepth(depth+1, e.depth) {
			_ = e.pdc.MarkToDelete(otherID, depth+1)
			continue
		}

		holds, _ := e.pdc.HoldsInSpace(otherID, spaceID)
		for _, h := range holds {
			e.decRefInOwningComponent(h.CapType, h.ObjectID)
		}
		_ = e.pdc.RemoveRDEsForSpace(otherID, spaceID)
		_ = e.pdc.RemoveHoldsInSpace(otherID, spaceID)

		if e.policy.recursesResources() {
			var managedByOther []uint16
			e.spc.ForEach(func(otherSpaceID uint16, otherSp *respace.Space) {
				if otherSp.ManagingPDID == otherID {
					managedByOther = append(managedByOther, otherSpaceID)
				}
			})
			for _, s := range managedByOther {
				e.spaceCleanup(s, depth, userInitiated, visited)
			}
		}
	}
}

// terminateOne runs the synchronous phase of termination for a single
// PD: managed-space cleanup, hold release, child marking, and the
// PD's own teardown.
func (e *Engine) terminateOne(pdID uint32, userInitiated bool, depth int) {
	if err := e.pdc.MarkDeleting(pdID); err != nil {
		return
	}

	var managed []uint16
	e.spc.ForEach(func(spaceID uint16, sp *respace.Space) {
		if sp.ManagingPDID == pdID {
			managed = append(managed, spaceID)
		}
	})
	visited := make(map[uint16]bool)
	for _, spaceID := range managed {
		e.spaceCleanup(spaceID, depth, userInitiated, visited)
	}

	holds, _ := e.pdc.Holds(pdID)
	for _, h := range holds {
		e.decRefInOwningComponent(h.CapType, h.ObjectID)
		if h.CapType >= badge.CapUserBase {
			if sp, err := e.spc.Get(h.SpaceID); err == nil {
				if _, err := e.pdc.Get(sp.ManagingPDID); err == nil {
					_ = e.pdc.Enqueue(sp.ManagingPDID, pd.WorkItem{
						Kind:       pd.Free,
						ObjectIDs:  []uint32{h.ObjectID},
						SpaceIDs:   []uint16{h.SpaceID},
						ClientPDID: pdID,
						IsCritical: userInitiated,
					})
					if userInitiated {
						e.mu.Lock()
						e.addCritical(sp.ManagingPDID, 1)
						e.mu.Unlock()
					}
				}
			}
		}
	}
	_ = e.pdc.ClearHolds(pdID)

	children, _ := e.pdc.Children(pdID)
	for _, childID := range children {
		_ = e.pdc.MarkToDelete(childID, depth+1)
	}

	e.creditDeadParticipant(pdID)
	e.mu.Lock()
	hook := e.onPDDeleted
	e.mu.Unlock()
	if hook != nil {
		hook(pdID)
	}
	_ = e.pdc.RemoveFromRT(pdID)

	logger := rmlog.WithComponent("cascade")
	logger.Debug().Uint32("pd_id", pdID).Int("depth", depth).Msg("pd terminated")
}

// sweep repeatedly terminates every
// live PD still marked to_delete, until a fixed point is reached.
func (e *Engine) sweep(userInitiated bool) {
	for {
		var next []struct {
			id    uint32
			depth int
		}
		e.pdc.ForEach(func(id uint32, obj *pd.Object) {
			if obj.IsDeleting() {
				return
			}
			if toDelete, depth := obj.ToDeletePending(); toDelete {
				next = append(next, struct {
					id    uint32
					depth int
				}{id, depth})
			}
		})
		if len(next) == 0 {
			return
		}
		for _, n := range next {
			e.terminateOne(n.id, userInitiated, n.depth)
		}
	}
}
