// Package sampleserver implements a user-defined resource server for
// the RM: a "container" resource type backed by containerd. It
// registers its own space via the Resource-Space component and
// participates in the async work protocol as any third-party
// participant would, pulling work through the same
// get_work/finish_work ops the RM exposes to every PD.
//
// The server is the untrusted half of the protocol: it holds its own
// map of containers, runs its own wake-and-drain loop against the
// RM's work queues, and the RM never sees inside it — everything it
// owns reaches the model only through its EXTRACT subgraphs.
package sampleserver
