package work

import (
	"sync"

	"github.com/cuemby/gpirm/pkg/cascade"
	"github.com/cuemby/gpirm/pkg/pd"
	"github.com/cuemby/gpirm/pkg/respace"
	"github.com/cuemby/gpirm/pkg/rmerr"
	"github.com/cuemby/gpirm/pkg/rmlog"
	"github.com/cuemby/gpirm/pkg/rmmetrics"
)

// Extractor drives dump(): it seeds a Graph from the
// RM's registries, fans EXTRACT work out to every live managing
// server, and merges each send_subgraph reply until the outstanding
// count reaches zero.
type Extractor struct {
	pdc *pd.Component
	spc *respace.Component
	cas *cascade.Engine

	mu            sync.Mutex
	inProgress    bool
	nMissing      int
	pendingByPD   map[uint32]int
	accum         *Graph
	deferredReply func(*Graph)
}

// NewExtractor constructs the model-extraction driver over the PD and
// Resource-Space registries, sharing the cascade engine's mutual
// exclusion guard.
func NewExtractor(pdc *pd.Component, spc *respace.Component, cas *cascade.Engine) *Extractor {
	return &Extractor{
		pdc:         pdc,
		spc:         spc,
		cas:         cas,
		pendingByPD: make(map[uint32]int),
	}
}

// InProgress reports whether a dump is currently outstanding, for the
// symmetric guard on terminate().
func (x *Extractor) InProgress() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.inProgress
}

// NMissing returns the outstanding subgraph-reply count.
func (x *Extractor) NMissing() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.nMissing
}

// Dump seeds a graph from the RM's own registries and fans EXTRACT work
// out to every live managing server. reply fires once every server has
// answered — immediately, if none manage extractable spaces.
func (x *Extractor) Dump(rootPDID uint32, reply func(*Graph)) error {
	if x.cas.TerminationInProgress() {
		return rmerr.New(rmerr.OperationInProgress, "cannot dump while a termination is in progress")
	}

	x.mu.Lock()
	if x.inProgress {
		x.mu.Unlock()
		return rmerr.New(rmerr.OperationInProgress, "a model extraction is already in progress")
	}
	x.inProgress = true
	x.accum = x.seed()
	x.mu.Unlock()
	x.cas.SetExtracting(true)

	managers := make(map[uint32]bool)
	x.spc.ForEach(func(_ uint16, sp *respace.Space) {
		if _, err := x.pdc.Get(sp.ManagingPDID); err == nil {
			managers[sp.ManagingPDID] = true
		}
	})

	x.mu.Lock()
	for managingPDID := range managers {
		if err := x.pdc.Enqueue(managingPDID, pd.WorkItem{Kind: pd.Extract, ClientPDID: rootPDID}); err != nil {
			continue
		}
		x.nMissing++
		x.pendingByPD[managingPDID]++
	}
	missing := x.nMissing
	if missing == 0 {
		x.inProgress = false
	} else {
		x.deferredReply = reply
	}
	accum := x.accum
	x.mu.Unlock()

	rmmetrics.ModelExtractionMissing.Set(float64(missing))
	if missing == 0 {
		x.cas.SetExtracting(false)
		if reply != nil {
			reply(accum)
		}
	}
	logger := rmlog.WithComponent("work")
	logger.Debug().
		Uint32("root_pd_id", rootPDID).
		Int("servers", len(managers)).
		Msg("dump started")
	return nil
}

// SendSubgraph merges one managing server's contribution, crediting
// nRequests against the outstanding counter. hasData false means the server had nothing to add for this
// request but is still acking it.
func (x *Extractor) SendSubgraph(pdID uint32, sub *Subgraph, hasData bool, nRequests int) error {
	x.mu.Lock()
	if !x.inProgress {
		x.mu.Unlock()
		return rmerr.New(rmerr.InvalidState, "pd %d: send_subgraph with no dump in progress", pdID)
	}
	if hasData {
		x.accum.merge(sub)
	}
	x.credit(pdID, nRequests)
	reply, accum := x.maybeComplete()
	x.mu.Unlock()

	rmmetrics.ModelExtractionMissing.Set(float64(x.NMissing()))
	if reply != nil {
		reply(accum)
	}
	return nil
}

// CreditDeadParticipant auto-acks any EXTRACT requests still pending
// against a managing server. Normally unreachable, since terminate()
// and dump() are mutually exclusive, but the cascade engine still
// invokes it for every PD it destroys so a server disappearing
// mid-extraction can never wedge the deferred reply.
func (x *Extractor) CreditDeadParticipant(pdID uint32) {
	x.mu.Lock()
	n := x.pendingByPD[pdID]
	if n == 0 {
		x.mu.Unlock()
		return
	}
	x.credit(pdID, n)
	reply, accum := x.maybeComplete()
	x.mu.Unlock()

	if reply != nil {
		reply(accum)
	}
}

// credit must be called with x.mu held.
func (x *Extractor) credit(pdID uint32, n int) {
	if n <= 0 {
		return
	}
	if n > x.nMissing {
		n = x.nMissing
	}
	x.nMissing -= n
	if remaining := x.pendingByPD[pdID] - n; remaining > 0 {
		x.pendingByPD[pdID] = remaining
	} else {
		delete(x.pendingByPD, pdID)
	}
}

// maybeComplete must be called with x.mu held. It returns the deferred
// reply and accumulated graph once the outstanding count reaches zero,
// clearing in-progress state; otherwise both are nil/zero.
func (x *Extractor) maybeComplete() (func(*Graph), *Graph) {
	if x.nMissing != 0 || !x.inProgress {
		return nil, nil
	}
	reply := x.deferredReply
	accum := x.accum
	x.deferredReply = nil
	x.inProgress = false
	x.cas.SetExtracting(false)
	return reply, accum
}

// seed builds the initial graph from the RM's own registries: every
// live PD, every resource space, the manages/hold edges between them,
// a REQUEST edge per RDE row (requester → the space's managing PD),
// and a MAP edge per declared space-to-space derivation.
// Managing-server subgraph contributions add the resources[] a space's
// own server tracks internally.
func (x *Extractor) seed() *Graph {
	g := &Graph{}

	x.pdc.ForEach(func(id uint32, obj *pd.Object) {
		g.PDs = append(g.PDs, PDNode{ID: id, ImageName: obj.ImageName, State: obj.State().String()})

		holds, _ := x.pdc.Holds(id)
		for _, h := range holds {
			g.Edges = append(g.Edges, Edge{Kind: EdgeHold, PDID: id, SpaceID: h.SpaceID, ObjectID: h.ObjectID})
		}
		rdes, _ := x.pdc.AllRDEs(id)
		for _, r := range rdes {
			e := Edge{Kind: EdgeRequest, PDID: id, SpaceID: r.SpaceID}
			if sp, err := x.spc.Get(r.SpaceID); err == nil {
				e.TargetPDID = sp.ManagingPDID
			}
			g.Edges = append(g.Edges, e)
		}
	})

	x.spc.ForEach(func(spaceID uint16, sp *respace.Space) {
		g.Spaces = append(g.Spaces, SpaceNode{
			SpaceID:      spaceID,
			ResourceType: sp.ResourceTypeTag,
			TypeName:     sp.TypeName,
			ManagingPD:   sp.ManagingPDID,
		})
		g.Edges = append(g.Edges, Edge{Kind: EdgeManages, PDID: sp.ManagingPDID, SpaceID: spaceID})
		if target, ok := sp.MapsTo(); ok {
			g.Edges = append(g.Edges, Edge{Kind: EdgeMap, SpaceID: spaceID, TargetSpaceID: target})
		}
	})

	return g
}
