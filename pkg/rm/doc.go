/*
Package rm is the Resource Manager reactor: the single struct that
composes every resource component (resource-space, MO, ADS, CPU, EP,
PD), the cascade engine, and the model-extraction driver into one
listening server.

The Reactor holds one struct field per subsystem, constructed once in
Boot in dependency order and threaded through every handler; its
methods are the RM's entire external interface. Nothing it owns is
persisted or replicated — a single-machine, rebuilt-at-boot server
needs no store and no consensus.

Dispatch routes dynamically over cap_type: badges are unpacked, the
cap_type field selects a component, and an object_id of NULL_OBJ
restricts the message to that component's own allocation entry point.
The wire codec and kernel IPC live outside this module, so Dispatch
works over an in-process Message/Reply pair rather than bytes; a real
transport would decode into a Message before calling it.
*/
package rm
