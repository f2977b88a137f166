/*
Package rescomp is the generic machinery shared by every concrete
resource component: address space, CPU, memory object, endpoint,
resource space, PD, and any user-defined resource type a server
registers at runtime.

# What it provides

Component[T] wraps a registry.Registry[T] with the bookkeeping every
component needs around it: a cap_type tag, a default resource-space id,
and Allocate/GetByID/GetByBadge/Inc/Dec/RemoveFromRT — the public
contract every component exposes.

# What it deliberately does not provide

No dispatch callback and no per-message entry size: there is no wire
codec in this module, so there is no fixed entry size to declare, and
routing by cap_type is a single switch in pkg/rm rather than a
per-component closure — a single dispatcher is easier to reason about
than N independently-registered callbacks. Each component's actual
operations (ads.Reserve, cpu.Configure, ...) are ordinary typed
methods that pkg/rm's dispatcher calls directly.
*/
package rescomp
