package work

import "github.com/cuemby/gpirm/pkg/badge"

// PDNode is one process directory in an extracted model.
type PDNode struct {
	ID        uint32
	ImageName string
	State     string
}

// SpaceNode is one resource space in an extracted model.
type SpaceNode struct {
	SpaceID      uint16
	ResourceType badge.CapType
	TypeName     string
	ManagingPD   uint32
}

// ResourceNode is one server-managed resource instance surfaced by a
// managing server's subgraph contribution.
type ResourceNode struct {
	SpaceID  uint16
	ObjectID uint32
	TypeName string
}

// EdgeKind distinguishes the relations a graph edge can represent:
// HOLD (pd → resource), REQUEST (pd → pd, derived from
// the requester's RDE), SUBSET (resource → space), MAP (resource or
// space → the space its contents derive from), plus MANAGES (pd →
// space) tying a space to its managing server.
type EdgeKind int

const (
	EdgeManages EdgeKind = iota
	EdgeHold
	EdgeRequest
	EdgeSubset
	EdgeMap
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeManages:
		return "MANAGES"
	case EdgeHold:
		return "HOLD"
	case EdgeRequest:
		return "REQUEST"
	case EdgeSubset:
		return "SUBSET"
	case EdgeMap:
		return "MAP"
	default:
		return "UNKNOWN"
	}
}

// Edge is one relation in the extracted model. Which fields are
// meaningful depends on Kind: HOLD uses PDID → (SpaceID, ObjectID);
// REQUEST uses PDID → TargetPDID (with SpaceID naming the space the
// RDE row covers); SUBSET uses (SpaceID, ObjectID) → SpaceID; MAP uses
// SpaceID → TargetSpaceID (ObjectID-level derivations, e.g. one file
// to its blocks, come from the managing server's subgraph with both
// ObjectID and TargetSpaceID set).
type Edge struct {
	Kind          EdgeKind
	PDID          uint32
	SpaceID       uint16
	ObjectID      uint32
	TargetPDID    uint32
	TargetSpaceID uint16
}

// Graph is the flattened, relocatable-in-spirit model extraction
// result: {num_pds, num_resources, num_edges, pds[],
// resources[], edges[]}. Offsets are unnecessary here since this is an
// in-process Go value rather than a wire-serialized blob a client maps
// by address.
type Graph struct {
	PDs       []PDNode
	Spaces    []SpaceNode
	Resources []ResourceNode
	Edges     []Edge
}

// merge folds a managing server's subgraph contribution into the
// accumulating model. Every contributed resource also gains a SUBSET
// edge to the space it lives in; servers only report the resources and
// hold/map edges they track internally.
func (g *Graph) merge(sub *Subgraph) {
	if sub == nil {
		return
	}
	g.Resources = append(g.Resources, sub.Resources...)
	g.Edges = append(g.Edges, sub.Edges...)
	for _, res := range sub.Resources {
		g.Edges = append(g.Edges, Edge{Kind: EdgeSubset, SpaceID: res.SpaceID, ObjectID: res.ObjectID})
	}
}

// Subgraph is what a managing server's send_subgraph reply decodes to
// for one EXTRACT request — the resources it owns plus the edges from
// its clients to those resources.
type Subgraph struct {
	Resources []ResourceNode
	Edges     []Edge
}
