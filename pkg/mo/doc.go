/*
Package mo implements the Memory-Object component: the only way any
process acquires physical memory in this system.

An Object is a sequence of uniform-size physical frames. Anything that
needs frames — a CPU's IPC buffer, an ADS attachment, a PD's explicit
holding — goes through Allocate or Connect. An object's refcount
includes every attachment and every explicit hold; at zero, its frames
are returned and, because every attaching VMR held a ref, there is
nothing left mapped anywhere by the time the callback runs.

Built on the same registry/component scaffolding every component uses
(pkg/rescomp); MOs are never persisted, so the registry is purely
in-memory.
*/
package mo
