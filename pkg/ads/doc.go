/*
Package ads implements the Address-Space component: an ordered set of
non-overlapping Virtual Memory Reservations, each optionally attached
to a backing Memory Object.

# Invariants

VMRs in one address space never overlap. An attached VMR's backing MO
has a ref attributable to that attachment (ads calls mo.Inc/mo.Dec and
mo.MarkAttached/mo.MarkDetached in lockstep). An unattached reservation
is a hole — in a real kernel, access to it faults; this port has no
kernel fault path, so Reserve without Attach simply leaves the range
unbacked.

# ELF loading

Real ELF parsing, relocation, and the thread-stack layout it needs
are out of scope. What the component actually does — place one VMR
per already-decoded segment, and resolve a page shared between two
segments by moving it to the VMR with the broader rights — is in
scope and is what LoadImage implements, taking parsed Segments as
input rather than raw ELF bytes.
*/
package ads
