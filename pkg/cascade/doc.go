/*
Package cascade implements the cleanup and cascade engine: the
configurable policies that propagate destruction through the live
resource graph when a PD or a resource space is torn down.

# Policies

Four policies are selectable:

  - ResourcesDirect: removing a PD removes the holds it had and destroys
    the spaces it manages, stripping every holder's resources in them;
    dependent PDs keep running but lose access.
  - ResourcesRecursive: additionally, when a stripped holder itself
    manages resource spaces, those spaces are cleaned up too, following
    the space graph (see below).
  - DependentsDirect: additionally, PDs that directly depend on a
    destroyed space (held a resource in it, or had an RDE for it) are
    themselves terminated.
  - DependentsRecursive: the dependents check applies transitively, up
    to Depth (-1 meaning unbounded).

The default is ResourcesRecursive with Depth = -1 — see pkg/bootcfg.

# Algorithm

Engine.Terminate runs in six steps: mark deleting, clean up managed
spaces (which may mark dependents to_delete), walk the hold registry
decrementing refs and queuing FREE
work, walk the link registry marking children to_delete, free
PD-internal resources, sweep every to_delete PD, and finally release a
deferred reply once outstanding critical work reaches zero.

# Space-graph propagation

Under ResourcesRecursive, destroying a space can strip a holder that
itself manages further spaces. Propagation follows the SPACE graph
alone, depth-first: whenever a holder loses access to a space, any
space that holder manages is cleaned up too, with no PD ever
terminated by this path — PDs die only under a DEPENDENTS_* policy. A
visited-set guards against map-cycle re-entry.
*/
package cascade
