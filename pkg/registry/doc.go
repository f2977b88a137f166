/*
Package registry implements the per-component resource registry: a
keyed map from object_id to a node carrying a reference count and a
deletion callback, with exactly-once deletion semantics under
re-entrant dec/delete.

# Design

Every concrete component (MO, ADS, CPU, EP, PD, a resource space, or a
user resource type) embeds one Registry[T] for its own object_id
space: a small CRUD surface per entity kind, in-memory and
ref-counted — nothing the RM tracks survives a reboot, so there is no
backing store.

Ids are handed out from a monotonic counter and only fall back to a
free list of returned ids once the counter nears the 20-bit object_id
ceiling — this keeps id reuse off the hot path, where "ids are never
reused while live" is easiest to reason about, while still making the
component survive long uptimes.

# Deletion

dec() that brings a node's refcount to zero, or an explicit delete(),
invokes the node's callback exactly once. A `deleting` flag on the
node guards re-entrancy: a callback that itself triggers a dec or
delete on the same id (common during cascade, pkg/cascade) is a no-op
rather than a double-free or a second callback invocation.
*/
package registry
