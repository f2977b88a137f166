package sampleserver

import (
	"sync"

	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/cuemby/gpirm/pkg/registry"
)

// Container is one resource record the sample server manages: what a
// container resource needs to describe itself, plus the client PDs
// that currently hold it.
type Container struct {
	ObjectID    uint32
	ImageRef    string
	ContainerID string
	TaskID      string
	Spec        *specs.Spec

	mu      sync.Mutex
	clients map[uint32]bool
}

// addClient records a PD as holding this resource, mirroring the hold
// bookkeeping the RM's PD component does for RM-native resources —
// the sample server must track its own clients since cap_type >=
// CapUserBase is never RM-routed.
func (c *Container) addClient(pdID uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clients[pdID] = true
}

func (c *Container) removeClient(pdID uint32) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.clients, pdID)
	return len(c.clients)
}

func (c *Container) clientCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clients)
}

// resourceRegistry is the sample server's own resource table, built directly
// on the shared ref-counted registry every RM component uses — a
// user-defined resource server gets the same bookkeeping primitive
// the RM core does, not a bespoke one.
type resourceRegistry = registry.Registry[*Container]
