package rmerr

import "fmt"

// Code is one of the RM's closed set of error kinds.
type Code int

const (
	// None indicates success. A reply record with Code == None carries
	// no Error value.
	None Code = iota

	// BadBadge means a badge's packed fields are out of range, or its
	// cap_type field is NONE.
	BadBadge

	// NotFound means the object id named in a badge or request is not
	// present in the component's registry.
	NotFound

	// WrongType means the cap_type in a badge does not match the
	// component that received the message.
	WrongType

	// InvalidState means the operation is forbidden in the object's
	// current state-machine state.
	InvalidState

	// OutOfMemory means frame or slot allocation failed.
	OutOfMemory

	// OutOfSlots means the target PD's cspace (or a component's id
	// space) is full.
	OutOfSlots

	// Overlap means a VMR reservation collides with an existing range.
	Overlap

	// OperationInProgress means a cleanup or model-extraction cycle is
	// already pending and conflicts with the requested operation.
	OperationInProgress

	// StillAttached means an explicit delete was requested on an MO
	// that still has live attachments (implicit, refcount-driven
	// destruction never raises this).
	StillAttached

	// Unknown is the catch-all for invariant violations that should be
	// impossible; it is returned to a client rather than aborting the
	// RM; aborts are reserved for kernel-level failures.
	Unknown
)

func (c Code) String() string {
	switch c {
	case None:
		return "NONE"
	case BadBadge:
		return "BAD_BADGE"
	case NotFound:
		return "NOT_FOUND"
	case WrongType:
		return "WRONG_TYPE"
	case InvalidState:
		return "INVALID_STATE"
	case OutOfMemory:
		return "OUT_OF_MEMORY"
	case OutOfSlots:
		return "OUT_OF_SLOTS"
	case Overlap:
		return "OVERLAP"
	case OperationInProgress:
		return "OPERATION_IN_PROGRESS"
	case StillAttached:
		return "STILL_ATTACHED"
	default:
		return "UNKNOWN"
	}
}

// Error is the error type that crosses a component boundary. It always
// carries one Code alongside a human-readable message, wrapping any
// underlying cause the way fmt.Errorf's %w does but with a closed code
// instead of an open string.
type Error struct {
	Code Code
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.msg)
}

func (e *Error) Unwrap() error { return e.err }

// New builds an Error with the given code and formatted message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error with the given code that also carries an
// underlying cause, for logging; the Code is what the client sees.
func Wrap(code Code, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, msg: fmt.Sprintf(format, args...), err: cause}
}

// CodeOf extracts the Code from err, returning None if err is nil and
// Unknown if it is not an *Error.
func CodeOf(err error) Code {
	if err == nil {
		return None
	}
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return Unknown
}
