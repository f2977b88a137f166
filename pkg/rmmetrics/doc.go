/*
Package rmmetrics exposes the resource manager's Prometheus metrics:
a handful of package-level collectors plus a Timer helper, registered
against the default registry and served over /metrics by whatever
process embeds the RM (cmd/gpirm).

There is no cluster to report on — these gauges
and counters describe the live object graph inside a single RM
process: how many objects each component currently holds, how often
cascades run and how long they take, and how the async work protocol's
outstanding-ack counters are trending.
*/
package rmmetrics
