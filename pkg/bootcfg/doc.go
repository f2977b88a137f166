/*
Package bootcfg models the single boot-time configuration record the
kernel hands the RM at startup, plus the cleanup-policy knobs.

There is no other environment at run time: no files, no env vars. A
BootInfo is populated one of two ways: a YAML document (a stand-in for
whatever the kernel's loader would otherwise serialize) or CLI flags
layered on top of it, via cmd/gpirm's cobra command.
*/
package bootcfg
