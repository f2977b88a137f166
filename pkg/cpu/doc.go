/*
Package cpu implements the CPU component: a schedulable context
bound to an address space and an IPC-buffer memory object, carried
through the state machine new → configured → running → stopped.

# Rebind ordering

change_vspace must never leave a CPU's old ADS decremented before its
new ADS is incremented — doing so could let the old ADS's refcount
touch zero (and be torn down) while the CPU still, momentarily,
depends on it. So the order is: increment the new ADS's ref, attempt
the bind, then decrement the old ADS's ref only once the bind has
committed. If the bind step fails, the new ADS's increment is undone
and the CPU is left exactly as it was.

bindVSpace is the seam a real kernel rebind would occupy; here it never
fails except through the test-only forceBindFailure hook, which exists
to exercise the revert path.

# Virtualization ops

inject_irq/ack_vppi/read_vcpu_regs/elevate are virtualization
passthroughs with no meaning on a kernel this port never talks to. VirtOps captures them as an interface whose default fails every op with INVALID_STATE, so
a future guest-CPU backend has somewhere to plug in without the default
path paying for it.
*/
package cpu
