/*
Package rmerr defines the closed set of error kinds the resource
manager can return to a client, and the Error type that carries one
across a component boundary.

# Background

Every reply record the RM sends ends with an error code.
There is no exception-style unwinding inside the RM: a handler that
detects a problem fills in the reply's error field and returns: the
reply is always sent, except for the small number of operations that
defer it (termination with outstanding critical work, a pending model
extraction, a cross-PD send) — see pkg/work and pkg/cascade.

# Usage

	if !badge.Valid() {
		return rmerr.New(rmerr.BadBadge, "badge %s is malformed", badge)
	}

	node, err := registry.Get(id)
	if err != nil {
		return rmerr.Wrap(rmerr.NotFound, err, "object %d", id)
	}

Code values are stable and intended to be compared with errors.Is-style
matching via CodeOf(); they are never strings a caller needs to parse.
*/
package rmerr
