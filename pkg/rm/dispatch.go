package rm

import (
	"github.com/cuemby/gpirm/pkg/badge"
	"github.com/cuemby/gpirm/pkg/rmerr"
	"github.com/cuemby/gpirm/pkg/rmlog"
	"github.com/cuemby/gpirm/pkg/rmmetrics"
)

// Message is the RM's in-process stand-in for a wire request: the
// badge the kernel attached, an operation discriminator, and an
// operation-specific payload. The real serialization codec is out of
// scope; a transport would decode bytes into one of
// these before calling Dispatch.
type Message struct {
	Badge   badge.Badge
	Op      string
	Payload any
}

// Reply is the RM's response to one Message: always an error code,
// plus whatever operation-specific data the op produced.
type Reply struct {
	Err  error
	Data any
}

// ReplyFunc receives exactly one Reply, synchronously if the operation
// completes inline or later if it was deferred. It is the
// Go stand-in for "a reply capability can be saved and invoked later".
type ReplyFunc func(Reply)

func errReply(err error) Reply { return Reply{Err: err} }

func okReply(data any) Reply { return Reply{Data: data} }

// Dispatch routes one message to its component by badge.CapType,
// an object_id of NULL_OBJ is only
// valid for the component's own allocation entry point, otherwise the
// badge must name a live object the op acts on. Errors never panic or
// abort Dispatch itself — a handler records its error into the Reply
// and returns, and the reply is always sent.
func (r *Reactor) Dispatch(msg Message, reply ReplyFunc) {
	timer := rmmetrics.NewTimer()
	capType := msg.Badge.CapType
	defer timer.ObserveDurationVec(rmmetrics.DispatchDuration, capType.String())

	if !msg.Badge.Valid() {
		r.finish(reply, errReply(rmerr.New(rmerr.BadBadge, "dispatch: invalid badge %s", msg.Badge)), capType)
		return
	}

	switch capType {
	case badge.CapResSpc:
		r.dispatchResSpc(msg, reply)
	case badge.CapMO:
		r.dispatchMO(msg, reply)
	case badge.CapADS:
		r.dispatchADS(msg, reply)
	case badge.CapCPU:
		r.dispatchCPU(msg, reply)
	case badge.CapEP:
		r.dispatchEP(msg, reply)
	case badge.CapPD:
		r.dispatchPD(msg, reply)
	default:
		if capType >= badge.CapUserBase {
			// User-defined resource types are routed by the managing
			// server's own endpoint, never through this dispatcher: the
			// RM only brokers the space's lifecycle, not
			// its resources' request traffic.
			r.finish(reply, errReply(rmerr.New(rmerr.WrongType, "cap_type %s is server-routed, not RM-routed", capType)), capType)
			return
		}
		r.finish(reply, errReply(rmerr.New(rmerr.BadBadge, "dispatch: unknown cap_type %s", capType)), capType)
	}
}

// finish sends reply and records the dispatch_total counter, deriving
// the error code from rep.Err (None on success) so every dispatch*
// handler reports its outcome through one place without restating the
// code at each call site.
func (r *Reactor) finish(reply ReplyFunc, rep Reply, capType badge.CapType) {
	code := rmerr.CodeOf(rep.Err)
	if rep.Err != nil {
		resLogger := rmlog.WithResource(capType.String(), 0, 0)
		resLogger.Debug().Err(rep.Err).Msg("dispatch error")
	}
	rmmetrics.DispatchTotal.WithLabelValues(capType.String(), code.String()).Inc()
	if reply != nil {
		reply(rep)
	}
}
