package sampleserver

import (
	"context"
	"sync"

	"github.com/cuemby/gpirm/pkg/badge"
	"github.com/cuemby/gpirm/pkg/pd"
	"github.com/cuemby/gpirm/pkg/registry"
	"github.com/cuemby/gpirm/pkg/rm"
	"github.com/cuemby/gpirm/pkg/rmerr"
	"github.com/cuemby/gpirm/pkg/rmlog"
	"github.com/cuemby/gpirm/pkg/work"
)

// ResourceType is the cap_type the sample server registers its space
// under — the first user-defined type.
const ResourceType badge.CapType = badge.CapUserBase

// TypeName is the resource-space's human-readable name.
const TypeName = "container"

// Server is a container resource server: a user-defined participant
// in the RM's resource-space and async-work protocols, holding its
// own resources and running a work loop against the RM's queues via
// in-process rm.Dispatch calls.
type Server struct {
	reactor *rm.Reactor
	runtime *Runtime

	pdID    uint32
	spaceID uint16

	reg *resourceRegistry

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Start registers a new container resource space with the RM under
// serverPDID's ownership and constructs the runtime that backs it.
// socketPath may be empty, in which case container resources are
// described but never actually run (describe-only mode).
func Start(reactor *rm.Reactor, serverPDID uint32, socketPath string) (*Server, error) {
	rt, err := NewRuntime(socketPath)
	if err != nil {
		return nil, err
	}

	s := &Server{
		reactor: reactor,
		runtime: rt,
		pdID:    serverPDID,
		reg:     registry.New[*Container](),
		stopCh:  make(chan struct{}),
	}

	reply := call(reactor, rm.Message{
		Badge: badge.Badge{CapType: badge.CapResSpc, ClientPDID: serverPDID},
		Op:    "register",
		Payload: rm.RegisterSpaceArgs{
			ResourceTypeTag: ResourceType,
			ServerEndpoint:  uint64(serverPDID)<<32 | 1,
			TypeName:        TypeName,
		},
	})
	if reply.Err != nil {
		return nil, reply.Err
	}
	result := reply.Data.(rm.RegisterSpaceResult)
	s.spaceID = result.SpaceID

	ssLogger := rmlog.WithComponent("sampleserver")
	ssLogger.Info().
		Uint16("space_id", s.spaceID).
		Uint32("pd_id", serverPDID).
		Msg("container resource space registered")
	return s, nil
}

// call invokes Dispatch synchronously, since every op this package
// drives except terminate/dump completes inline — those two are
// exercised through the PD work protocol below instead, never directly.
func call(r *rm.Reactor, msg rm.Message) rm.Reply {
	var out rm.Reply
	r.Dispatch(msg, func(rep rm.Reply) { out = rep })
	return out
}

// Allocate creates a new container resource on behalf of clientPDID,
// describing it with an OCI spec and, if a containerd daemon is
// reachable, starting it. The resulting capability is handed to the
// client via the RM's give_resource op.
func (s *Server) Allocate(ctx context.Context, clientPDID uint32, imageRef string, env []string) (uint32, badge.Badge, error) {
	containerID, spec := s.runtime.DescribeSpec(imageRef, env)

	c := &Container{
		ImageRef:    imageRef,
		ContainerID: containerID,
		Spec:        spec,
		clients:     make(map[uint32]bool),
	}

	taskID, err := s.runtime.CreateTask(ctx, containerID, imageRef, spec)
	if err != nil {
		return 0, badge.Badge{}, rmerr.Wrap(rmerr.Unknown, err, "create containerd task for %s", imageRef)
	}
	c.TaskID = taskID

	id, err := s.reg.InsertNew(c, s.onResourceDelete)
	if err != nil {
		return 0, badge.Badge{}, err
	}
	c.ObjectID = id
	c.addClient(clientPDID)

	b := badge.Badge{CapType: ResourceType, SpaceID: s.spaceID, ObjectID: id, ClientPDID: clientPDID}
	if !b.Valid() {
		_ = s.reg.Delete(id)
		return 0, badge.Badge{}, rmerr.New(rmerr.BadBadge, "minted badge for container %d is malformed", id)
	}

	if reply := call(s.reactor, rm.Message{
		Badge: badge.Badge{CapType: badge.CapPD, ObjectID: clientPDID, ClientPDID: s.pdID},
		Op:    "give_resource",
		Payload: rm.GiveResourceArgs{
			RecipientPDID: clientPDID,
			Cap:           b,
		},
	}); reply.Err != nil {
		_ = s.reg.Delete(id)
		return 0, badge.Badge{}, reply.Err
	}

	return id, b, nil
}

// Free drops clientPDID's reference to a container resource, deleting
// it outright once no client holds it any longer.
func (s *Server) Free(objectID uint32, clientPDID uint32) error {
	node, err := s.reg.Get(objectID)
	if err != nil {
		return err
	}
	remaining := node.Value.removeClient(clientPDID)
	if remaining == 0 {
		return s.reg.Dec(objectID)
	}
	return nil
}

func (s *Server) onResourceDelete(id uint32, c *Container) {
	if err := s.runtime.DeleteTask(context.Background(), c.ContainerID); err != nil {
		ssLogger := rmlog.WithComponent("sampleserver")
		ssLogger.Warn().Err(err).
			Uint32("object_id", id).Str("container_id", c.ContainerID).
			Msg("failed to tear down containerd task")
	}
}

// Subgraph builds this server's contribution to a model-extraction pass:
// one resource node and one HOLD edge per
// client per live container.
func (s *Server) Subgraph() *work.Subgraph {
	sub := &work.Subgraph{}
	s.reg.ForEach(func(n *registry.Node[*Container]) {
		c := n.Value
		sub.Resources = append(sub.Resources, work.ResourceNode{
			SpaceID: s.spaceID, ObjectID: c.ObjectID, TypeName: TypeName,
		})
		c.mu.Lock()
		for clientPDID := range c.clients {
			sub.Edges = append(sub.Edges, work.Edge{
				Kind: work.EdgeHold, PDID: clientPDID, SpaceID: s.spaceID, ObjectID: c.ObjectID,
			})
		}
		c.mu.Unlock()
	})
	return sub
}

// DestroyAll force-deletes every live container this server manages,
// used when the RM enqueues a DESTROY work item for the server's own
// space.
func (s *Server) DestroyAll() {
	var ids []uint32
	s.reg.ForEach(func(n *registry.Node[*Container]) { ids = append(ids, n.ID) })
	for _, id := range ids {
		_ = s.reg.Delete(id)
	}
}

// runOne drains and handles a single pass of pending work for the
// server's own PD, returning the number of items processed.
func (s *Server) runOne() int {
	n := 0
	for {
		item, ok, err := s.reactor.PD.GetWork(s.pdID)
		if err != nil || !ok {
			return n
		}
		s.handle(item)
		n++
	}
}

func (s *Server) handle(item pd.WorkItem) {
	nCritical := 0
	if item.IsCritical {
		nCritical = 1
	}

	switch item.Kind {
	case pd.Extract:
		sub := s.Subgraph()
		_ = call(s.reactor, rm.Message{
			Badge: badge.Badge{CapType: badge.CapPD, ObjectID: s.pdID, ClientPDID: s.pdID},
			Op:    "send_subgraph",
			Payload: rm.SendSubgraphArgs{
				Sub: sub, HasData: len(sub.Resources) > 0, NRequests: 1,
			},
		})
		return
	case pd.Free:
		for _, objectID := range item.ObjectIDs {
			if err := s.Free(objectID, item.ClientPDID); err != nil {
				ssLogger := rmlog.WithComponent("sampleserver")
				ssLogger.Debug().Err(err).
					Uint32("object_id", objectID).Msg("free failed")
			}
		}
	case pd.Destroy:
		s.DestroyAll()
	case pd.Send:
		for _, objectID := range item.ObjectIDs {
			if node, err := s.reg.Get(objectID); err == nil {
				node.Value.addClient(item.ClientPDID)
			}
		}
	}

	_ = call(s.reactor, rm.Message{
		Badge:   badge.Badge{CapType: badge.CapPD, ObjectID: s.pdID, ClientPDID: s.pdID},
		Op:      "finish_work",
		Payload: rm.FinishWorkArgs{Kind: item.Kind, NCritical: nCritical},
	})
}

// Run starts the server's get_work loop, waking whenever the RM
// signals new work for its PD and draining it, until Stop is called.
// The loop is notification-driven rather than ticker-driven since the
// work protocol already has its own wakeup channel.
func (s *Server) Run() error {
	obj, err := s.reactor.PD.Get(s.pdID)
	if err != nil {
		return err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		notify := obj.NotifyChan()
		for {
			select {
			case _, ok := <-notify:
				if !ok {
					return
				}
				s.runOne()
			case <-s.stopCh:
				return
			}
		}
	}()
	return nil
}

// Stop ends the server's work loop and waits for it to exit.
func (s *Server) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	_ = s.runtime.Close()
}
