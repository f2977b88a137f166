/*
Package respace implements the Resource-Space component: the
meta-type that lets a space itself be a tracked resource, so
destroying it cascades to everything registered under it.

A space is created the first time a server registers a type it
manages (user-defined cap types start at badge.CapUserBase); the
built-in components (mo, ads, cpu, ep, pd) each get a well-known space
at RM boot instead of registering dynamically. A space may declare it
maps to another space (files → blocks); MapsTo records that and the
cascade/model-extraction code read it, but nothing in this package
enforces that the declaration stays stable over a space's lifetime —
whether such a declaration may later change is deliberately
unconstrained.
*/
package respace
