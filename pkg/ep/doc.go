/*
Package ep implements the Endpoint component: a tracked wrapper
around a kernel endpoint, used for fault delivery and for servers
listening for client requests.

The kernel endpoint itself is opaque to this port; Object
carries a RawEndpoint token standing in for that kernel object so the
component can still model allocate/badge/forge without talking to a
kernel.
*/
package ep
