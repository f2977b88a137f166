package pd

import "github.com/cuemby/gpirm/pkg/rmerr"

// WorkKind is one of the four async work-protocol verbs.
type WorkKind int

const (
	Extract WorkKind = iota
	Free
	Destroy
	Send
)

func (k WorkKind) String() string {
	switch k {
	case Extract:
		return "EXTRACT"
	case Free:
		return "FREE"
	case Destroy:
		return "DESTROY"
	case Send:
		return "SEND"
	default:
		return "UNKNOWN"
	}
}

// WorkItem is one entry in a PD's work queue.
type WorkItem struct {
	Kind       WorkKind
	ObjectIDs  []uint32
	SpaceIDs   []uint16
	ClientPDID uint32
	IsCritical bool
}

// Enqueue appends item to the PD's work queue and signals the PD's
// notification so its server loop wakes up.
func (c *Component) Enqueue(id uint32, item WorkItem) error {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return err
	}
	obj.mu.Lock()
	obj.work = append(obj.work, item)
	obj.mu.Unlock()

	obj.signal()
	return nil
}

// GetWork dequeues and returns the next pending work item, or ok=false
// if the PD's queue is empty ("NO_WORK"). Items come back in enqueue
// order regardless of kind, so a DESTROY queued before a FREE is
// observed before it.
func (c *Component) GetWork(id uint32) (WorkItem, bool, error) {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return WorkItem{}, false, err
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()

	if len(obj.work) == 0 {
		return WorkItem{}, false, nil
	}
	item := obj.work[0]
	obj.work = obj.work[1:]
	return item, true, nil
}

// PendingWork reports how many items remain queued for kind, without
// dequeuing.
func (c *Component) PendingWork(id uint32, kind WorkKind) (int, error) {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return 0, err
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	n := 0
	for _, item := range obj.work {
		if item.Kind == kind {
			n++
		}
	}
	return n, nil
}

// FinishWork is a PD's ack for FREE/DESTROY/SEND work;
// the cascade/work-protocol layer uses nCritical to decrement its
// outstanding critical-ack counters.
func (c *Component) FinishWork(id uint32, kind WorkKind, nCritical int) error {
	if _, err := c.base.GetByID(id); err != nil {
		return err
	}
	if nCritical < 0 {
		return rmerr.New(rmerr.InvalidState, "pd %d: negative critical ack count for %s", id, kind)
	}
	return nil
}

// LinkChild attaches childPDID as a child whose lifetime is bounded by
// this PD; the cascade engine marks linked
// children to_delete when the parent terminates (step 3).
func (c *Component) LinkChild(id uint32, childPDID uint32) error {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return err
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	obj.links[childPDID] = true
	return nil
}

// Children returns the PD's linked children.
func (c *Component) Children(id uint32) ([]uint32, error) {
	obj, err := c.base.GetByID(id)
	if err != nil {
		return nil, err
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	out := make([]uint32, 0, len(obj.links))
	for child := range obj.links {
		out = append(out, child)
	}
	return out, nil
}
