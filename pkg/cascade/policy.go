package cascade

// Policy selects how far destruction propagates when a PD or a
// resource space it manages is torn down.
type Policy string

const (
	ResourcesDirect     Policy = "RESOURCES_DIRECT"
	ResourcesRecursive  Policy = "RESOURCES_RECURSIVE"
	DependentsDirect    Policy = "DEPENDENTS_DIRECT"
	DependentsRecursive Policy = "DEPENDENTS_RECURSIVE"
)

// UnboundedDepth disables the PD cleanup depth bound entirely.
const UnboundedDepth = -1

// DefaultPolicy and DefaultDepth are the stock configuration: full
// resource propagation, no dependent-PD termination, unbounded depth.
const (
	DefaultPolicy = ResourcesRecursive
	DefaultDepth  = UnboundedDepth
)

// recursesResources reports whether, after a holder of a destroyed
// space is stripped of its resources there, the spaces that holder
// manages are cleaned up too. Stripping the holders themselves happens
// under every policy.
func (p Policy) recursesResources() bool {
	return p == ResourcesRecursive || p == DependentsDirect || p == DependentsRecursive
}

// terminatesDependents reports whether a PD that merely depends on a
// destroyed space (via an RDE or a held resource) is itself terminated.
func (p Policy) terminatesDependents() bool {
	return p == DependentsDirect || p == DependentsRecursive
}

// isRecursiveDepth reports whether the dependents check applies
// transitively (depth-bounded) rather than only at depth 1.
func (p Policy) isRecursiveDepth() bool {
	return p == DependentsRecursive
}

// withinDepth reports whether a PD found at depth+1 is still within
// the configured cleanup depth bound.
func withinDepth(depth int, maxDepth int) bool {
	return maxDepth == UnboundedDepth || depth <= maxDepth
}
