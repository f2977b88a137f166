/*
Package work implements the async work protocol and the
model-extraction pass built on it. The work-queue data types (WorkKind,
WorkItem, per-PD FIFOs, get_work/finish_work) live on pd.Object and
pd.Component, since they are per-PD state the PD record owns; this
package is specifically the distributed graph-building protocol driven
by dump() — the piece with no natural home on a single PD because it
fans out across every managing server and merges their replies.

# Model extraction

Dump seeds a Graph from the RM's own registries (every live PD,
every resource space, and the edges between them) and then enqueues
one EXTRACT work item per live managing server, incrementing
model_extraction_n_missing. A managing server's send_subgraph reply is
expected to arrive with an MO holding a serialized subgraph; a kernel
implementation would temporarily map that MO into the RM's own address
space, rebase the embedded offsets, and free the mapping afterward.
Since pkg/mo models frames as opaque byte-less allocations with no
simulated memory contents, that mapping step has nothing to read:
SendSubgraph instead takes the already-decoded Subgraph value a real
mapping step would have produced; it takes no MO id and maps nothing
through pkg/ads.

Dump and Engine.Terminate are mutually exclusive: Extractor checks
cascade.Engine.TerminationInProgress before starting, and sets
cascade.Engine.SetExtracting for the duration so a concurrent
terminate() is rejected with OPERATION_IN_PROGRESS.

# Graph edges

The extracted model carries five edge kinds: HOLD and MANAGES
straight from the PD and resource-space registries, REQUEST
derived from each PD's RDE table (pointing at the space's managing
server), MAP from a space's declared derivation target, and SUBSET
synthesized for every resource a managing server contributes.

# Deferred SEND replies

SendTracker is the third deferred-reply slot, alongside terminate
and extract: a send_cap moving a server-managed resource across PDs
parks the sender's reply
until the managing server acks the SEND work item (or dies, in which
case the cascade engine's deletion hook releases the reply on the dead
server's behalf).
*/
package work
