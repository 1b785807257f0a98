package chatango

import "errors"

// Kind classifies the recoverable error conditions a Room or Client can
// hit, mirroring the disposition each one gets per their handling rules:
// some surface synchronously to the caller, others only ever reach a log.
type Kind int

const (
	// InvalidRoomName means a room name failed ^[a-z0-9-]{1,20}$.
	InvalidRoomName Kind = iota
	// AlreadyConnected means connect() was called on a connected Room.
	AlreadyConnected
	// NotConnected means an outbound send was attempted while disconnected.
	NotConnected
	// TransportError means the WebSocket dial or an I/O operation failed.
	TransportError
	// HandlerError means a protocol verb handler panicked or returned an error.
	HandlerError
	// ProtocolDenied means the server sent a denied frame.
	ProtocolDenied
)

func (k Kind) String() string {
	switch k {
	case InvalidRoomName:
		return "invalid_room_name"
	case AlreadyConnected:
		return "already_connected"
	case NotConnected:
		return "not_connected"
	case TransportError:
		return "transport_error"
	case HandlerError:
		return "handler_error"
	case ProtocolDenied:
		return "protocol_denied"
	default:
		return "unknown"
	}
}

// Error is the typed error this package returns. Callers use errors.As to
// recover the Kind and errors.Is against the package-level sentinels below.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether target is an *Error with the same Kind, so callers
// can write errors.Is(err, chatango.ErrInvalidRoomName) instead of
// errors.As and a field check.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel values usable with errors.Is; only the Kind field is compared.
var (
	ErrInvalidRoomName  = &Error{Kind: InvalidRoomName}
	ErrAlreadyConnected = &Error{Kind: AlreadyConnected}
	ErrNotConnected     = &Error{Kind: NotConnected}
	ErrTransport        = &Error{Kind: TransportError}
	ErrHandler          = &Error{Kind: HandlerError}
	ErrProtocolDenied   = &Error{Kind: ProtocolDenied}
)

// As is a convenience wrapper around errors.As for this package's Error type.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
