/*
Package pd implements the Process Directory component: the richest
entity in the system and the locus of composition — every other
component's objects ultimately trace back to holds,
request-directory entries, and work items recorded against some PD.

A PD's own lifecycle, new → configured → running → deleting → deleted,
is distinct from what it tracks about other resources. Allocate leaves
a PD in state new; RuntimeSetup records the image's
argv/entry-point/IPC-buffer layout and moves it to configured;
MarkRunning moves it to running once the RM considers it dispatching. Deletion
itself is driven from outside this package, by the cascade engine
(pkg/cascade): this package only exposes the low-level mutators
(hold/RDE/link/work-queue walks, MarkDeleting, the registry onDelete
callback that releases a PD's own cspace/bound-ADS/bound-CPU/fault-EP
refs) that the cascade algorithm's six steps are built from.

Cross-component refcounting (SendCap, GiveResource) is expressed here
as administrative bookkeeping plus a caller-supplied increment, rather
than this package importing every resource component's Inc: the
dispatcher (pkg/rm) knows which component owns a given badge and is the
one positioned to call it.
*/
package pd
