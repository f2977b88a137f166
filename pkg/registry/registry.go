package registry

import (
	"sync"

	"github.com/cuemby/gpirm/pkg/badge"
	"github.com/cuemby/gpirm/pkg/rmerr"
)

// nearCeiling is how close to the 20-bit object_id ceiling the
// monotonic counter must get before the registry starts recycling ids
// from its free list instead of handing out fresh ones.
const nearCeiling = badge.MaxObjectID - 4096

// DeleteFunc is invoked exactly once when a node's refcount reaches
// zero or it is force-deleted. It runs with the registry's lock
// released, so it may safely call back into the registry (e.g. to dec
// another object this one referenced).
type DeleteFunc[T any] func(id uint32, value T)

// Node is one entry in a Registry.
type Node[T any] struct {
	ID       uint32
	Value    T
	refcount int
	deleting bool
	onDelete DeleteFunc[T]
}

// Refcount returns the node's current reference count.
func (n *Node[T]) Refcount() int { return n.refcount }

// Registry is a ref-counted, id-keyed map from object_id to a node of
// type T. The zero value is not usable;
// construct with New.
type Registry[T any] struct {
	mu      sync.Mutex
	nodes   map[uint32]*Node[T]
	next    uint32
	freeIDs []uint32
}

// New creates an empty registry. object_id 0 (badge.NullObj) is never
// handed out by InsertNew.
func New[T any]() *Registry[T] {
	return &Registry[T]{
		nodes: make(map[uint32]*Node[T]),
		next:  1,
	}
}

// allocID returns the next free object_id, or an error if the
// component's 20-bit id space is exhausted with nothing left on the
// free list to recycle.
func (r *Registry[T]) allocID() (uint32, error) {
	if r.next <= nearCeiling {
		id := r.next
		r.next++
		return id, nil
	}
	if len(r.freeIDs) > 0 {
		id := r.freeIDs[len(r.freeIDs)-1]
		r.freeIDs = r.freeIDs[:len(r.freeIDs)-1]
		return id, nil
	}
	if r.next <= badge.MaxObjectID {
		id := r.next
		r.next++
		return id, nil
	}
	return 0, rmerr.New(rmerr.OutOfSlots, "component id space exhausted")
}

// InsertNew allocates a fresh object_id, stores value under it with
// refcount 1, and returns the id.
func (r *Registry[T]) InsertNew(value T, onDelete DeleteFunc[T]) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, err := r.allocID()
	if err != nil {
		return 0, err
	}
	r.nodes[id] = &Node[T]{ID: id, Value: value, refcount: 1, onDelete: onDelete}
	return id, nil
}

// InsertWithID stores value under an explicit, caller-chosen id
// (used when forging well-known objects such as the root task's PD).
// It fails if the id is already live.
func (r *Registry[T]) InsertWithID(id uint32, value T, onDelete DeleteFunc[T]) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodes[id]; exists {
		return rmerr.New(rmerr.InvalidState, "object id %d already in use", id)
	}
	r.nodes[id] = &Node[T]{ID: id, Value: value, refcount: 1, onDelete: onDelete}
	if id >= r.next {
		r.next = id + 1
	}
	return nil
}

// Get returns the node for id, or NOT_FOUND.
func (r *Registry[T]) Get(id uint32) (*Node[T], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[id]
	if !ok || n.deleting {
		return nil, rmerr.New(rmerr.NotFound, "object %d", id)
	}
	return n, nil
}

// Inc increments id's refcount. Every Inc is paired with a later Dec.
func (r *Registry[T]) Inc(id uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[id]
	if !ok || n.deleting {
		return rmerr.New(rmerr.NotFound, "object %d", id)
	}
	n.refcount++
	return nil
}

// Dec decrements id's refcount. At zero, the node's deletion callback
// runs exactly once and the node is removed from the registry. Calling
// Dec again on a node already being deleted (re-entrantly, from within
// its own callback) is a safe no-op.
func (r *Registry[T]) Dec(id uint32) error {
	r.mu.Lock()
	n, ok := r.nodes[id]
	if !ok {
		r.mu.Unlock()
		return rmerr.New(rmerr.NotFound, "object %d", id)
	}
	if n.deleting {
		r.mu.Unlock()
		return nil
	}
	n.refcount--
	fire := n.refcount <= 0
	if fire {
		n.deleting = true
	}
	r.mu.Unlock()

	if fire {
		r.finalize(n)
	}
	return nil
}

// Delete force-runs the deletion callback regardless of refcount. Like
// Dec, it is a no-op if the node is already being deleted — or already
// gone, so a force-delete is idempotent from the caller's view.
func (r *Registry[T]) Delete(id uint32) error {
	r.mu.Lock()
	n, ok := r.nodes[id]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	if n.deleting {
		r.mu.Unlock()
		return nil
	}
	n.deleting = true
	r.mu.Unlock()

	r.finalize(n)
	return nil
}

func (r *Registry[T]) finalize(n *Node[T]) {
	if n.onDelete != nil {
		n.onDelete(n.ID, n.Value)
	}

	r.mu.Lock()
	delete(r.nodes, n.ID)
	if n.ID < nearCeiling {
		// cheap to just drop it; only recycle ids once we're near the
		// ceiling, see allocID.
	} else {
		r.freeIDs = append(r.freeIDs, n.ID)
	}
	r.mu.Unlock()
}

// ForEach calls fn for every live node. fn must not call back into the
// registry with an id-mutating operation (Insert*/Delete) on the same
// registry; reading via Get or Inc/Dec on a *different* id is fine.
func (r *Registry[T]) ForEach(fn func(*Node[T])) {
	r.mu.Lock()
	snapshot := make([]*Node[T], 0, len(r.nodes))
	for _, n := range r.nodes {
		snapshot = append(snapshot, n)
	}
	r.mu.Unlock()

	for _, n := range snapshot {
		fn(n)
	}
}

// Len returns the number of live nodes.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.nodes)
}
