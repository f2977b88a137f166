package rm

import (
	"github.com/cuemby/gpirm/pkg/ads"
	"github.com/cuemby/gpirm/pkg/badge"
	"github.com/cuemby/gpirm/pkg/bootcfg"
	"github.com/cuemby/gpirm/pkg/cascade"
	"github.com/cuemby/gpirm/pkg/cpu"
	"github.com/cuemby/gpirm/pkg/ep"
	"github.com/cuemby/gpirm/pkg/mo"
	"github.com/cuemby/gpirm/pkg/pd"
	"github.com/cuemby/gpirm/pkg/respace"
	"github.com/cuemby/gpirm/pkg/rmerr"
	"github.com/cuemby/gpirm/pkg/rmlog"
	"github.com/cuemby/gpirm/pkg/rmmetrics"
	"github.com/cuemby/gpirm/pkg/work"
)

// builtin space ids, fixed by convention so every badge naming a
// built-in component resolves to the same space regardless of boot
// order.
const (
	spaceResSpc uint16 = 1
	spaceMO     uint16 = 2
	spaceADS    uint16 = 3
	spaceCPU    uint16 = 4
	spaceEP     uint16 = 5
	spacePD     uint16 = 6
)

// Reactor is the RM: one instance per booted system, owning every
// component and the cascade/extraction engines that cut across them.
type Reactor struct {
	Pool *mo.FramePool

	ResSpace *respace.Component
	MO       *mo.Component
	ADS      *ads.Component
	CPU      *cpu.Component
	EP       *ep.Component
	PD       *pd.Component

	Cascade *cascade.Engine
	Extract *work.Extractor
	Sends   *work.SendTracker

	RootPDID uint32
}

// Boot constructs a Reactor from a BootInfo: it sizes the
// frame pool from the kernel's untyped region list, wires every
// component together in dependency order, registers the six built-in
// resource spaces, and forges the root-task PD the kernel's initial
// thread runs as.
func Boot(info bootcfg.BootInfo) (*Reactor, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}

	var totalFrames uint64
	for _, r := range info.UntypedRegions {
		totalFrames += 1 << r.SizeBits
	}

	pool := mo.NewFramePool(totalFrames)
	spc := respace.NewComponent()
	moc := mo.NewComponent(pool)
	adsc := ads.NewComponent(moc)
	cpuc := cpu.NewComponent(adsc, moc)
	epc := ep.NewComponent()
	pdc := pd.NewComponent(adsc, cpuc, epc)

	for _, b := range builtinSpaces() {
		if err := spc.RegisterBuiltin(b.id, b.cap, b.name); err != nil {
			return nil, rmerr.Wrap(rmerr.Unknown, err, "register builtin space %s", b.name)
		}
	}

	cas := cascade.NewEngine(pdc, spc, moc, adsc, cpuc, epc, info.CleanupPolicy, info.CleanupDepth)
	ext := work.NewExtractor(pdc, spc, cas)
	sends := work.NewSendTracker()

	// A PD destroyed mid-protocol counts its outstanding extraction and
	// send acks as satisfied, so a deferred caller always makes progress.
	cas.SetOnPDDeleted(func(pdID uint32) {
		ext.CreditDeadParticipant(pdID)
		sends.CreditDeadParticipant(pdID)
	})

	r := &Reactor{
		Pool:     pool,
		ResSpace: spc,
		MO:       moc,
		ADS:      adsc,
		CPU:      cpuc,
		EP:       epc,
		PD:       pdc,
		Cascade:  cas,
		Extract:  ext,
		Sends:    sends,
		RootPDID: info.RootTaskPDID,
	}

	if err := r.forgeRootPD(info); err != nil {
		return nil, err
	}

	rmLogger := rmlog.WithComponent("rm")
	rmLogger.Info().
		Uint64("frames", totalFrames).
		Str("cleanup_policy", string(info.CleanupPolicy)).
		Int("cleanup_depth", info.CleanupDepth).
		Msg("resource manager booted")

	return r, nil
}

// builtinSpaces enumerates the (space_id, cap_type, name) triples for
// the six component types the RM itself manages, in a deterministic
// order so Boot always assigns the same ids.
func builtinSpaces() []struct {
	id   uint16
	cap  badge.CapType
	name string
} {
	return []struct {
		id   uint16
		cap  badge.CapType
		name string
	}{
		{spaceResSpc, badge.CapResSpc, "resspc"},
		{spaceMO, badge.CapMO, "mo"},
		{spaceADS, badge.CapADS, "ads"},
		{spaceCPU, badge.CapCPU, "cpu"},
		{spaceEP, badge.CapEP, "ep"},
		{spacePD, badge.CapPD, "pd"},
	}
}

// forgeRootPD creates the PD record for the kernel's initial thread.
// It is forge_only in spirit (the root task's capabilities already
// exist by the time the RM boots; the RM only needs a bookkeeping
// record for it) but Allocate's normal path already serves that: the
// root PD is allocated with parent id 0.
func (r *Reactor) forgeRootPD(info bootcfg.BootInfo) error {
	id, _, err := r.PD.Allocate(0, "root-task", 0)
	if err != nil {
		return rmerr.Wrap(rmerr.Unknown, err, "forge root-task pd")
	}
	if id != info.RootTaskPDID {
		rmLogger := rmlog.WithComponent("rm")
		rmLogger.Warn().
			Uint32("allocated", id).
			Uint32("configured", info.RootTaskPDID).
			Msg("root task pd id mismatch; using allocated id")
		r.RootPDID = id
	}
	return nil
}

// ObjectCounts reports the live-object count of every component,
// refreshing the rmmetrics gauges as a side effect.
func (r *Reactor) ObjectCounts() map[string]int {
	counts := map[string]int{
		"resspc": r.ResSpace.Len(),
		"mo":     r.MO.Len(),
		"ads":    r.ADS.Len(),
		"cpu":    r.CPU.Len(),
		"ep":     r.EP.Len(),
		"pd":     r.PD.Len(),
	}
	for component, n := range counts {
		rmmetrics.ObjectsLive.WithLabelValues(component).Set(float64(n))
	}
	rmmetrics.PDsLive.Set(float64(counts["pd"]))
	return counts
}
