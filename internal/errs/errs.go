// Package errs implements the node's error taxonomy: every error that
// crosses a component boundary carries a Kind so callers can switch on
// disposition (reconnect, drop silently, return to caller, ...)
// without string matching, per the error handling design.
package errs

import "errors"

// Kind classifies an error for disposition purposes.
type Kind int

const (
	KindUnknown Kind = iota
	KindTransientIO
	KindProtocolViolation
	KindAuthFailure
	KindCapacity
	KindNotFound
	KindExpiry
	KindCorruptLocal
	KindInvalidInput
)

func (k Kind) String() string {
	switch k {
	case KindTransientIO:
		return "transient_io"
	case KindProtocolViolation:
		return "protocol_violation"
	case KindAuthFailure:
		return "auth_failure"
	case KindCapacity:
		return "capacity"
	case KindNotFound:
		return "not_found"
	case KindExpiry:
		return "expiry"
	case KindCorruptLocal:
		return "corrupt_local"
	case KindInvalidInput:
		return "invalid_input"
	default:
		return "unknown"
	}
}

// Disposition is the action a component should take on an error of a
// given Kind, per the spec's error handling table.
type Disposition int

const (
	DispositionReturnToCaller Disposition = iota
	DispositionReconnect
	DispositionCloseAndCooldown
	DispositionDropSilently
	DispositionDropPerHop
)

// Disposition maps a Kind to its required handling.
func (k Kind) Disposition() Disposition {
	switch k {
	case KindTransientIO:
		return DispositionReconnect
	case KindProtocolViolation, KindAuthFailure:
		return DispositionCloseAndCooldown
	case KindCapacity:
		return DispositionDropPerHop
	case KindExpiry:
		return DispositionDropSilently
	default:
		return DispositionReturnToCaller
	}
}

// Error wraps an underlying error with a Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String()
	}
	return e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a Kind-tagged error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind from err, defaulting to KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Sentinel errors for conditions that do not need extra context.
var (
	ErrFrameTooLarge      = New(KindProtocolViolation, "frame", errors.New("frame exceeds maximum size"))
	ErrAuthFailure        = New(KindAuthFailure, "frame", errors.New("authentication tag mismatch"))
	ErrVersionUnsupported = New(KindProtocolViolation, "handshake", errors.New("unsupported protocol version"))
	ErrSessionHijack      = New(KindProtocolViolation, "handshake", errors.New("duplicate hello on established session"))
	ErrReplay             = New(KindAuthFailure, "session", errors.New("nonce replay detected"))
	ErrNotFound           = New(KindNotFound, "lookup", errors.New("not found"))
	ErrTimeout            = New(KindTransientIO, "io", errors.New("operation timed out"))
	ErrInvalidAddress     = New(KindInvalidInput, "content", errors.New("malformed ely:// address"))
	ErrCorruptLocal       = New(KindCorruptLocal, "content", errors.New("stored content failed integrity check"))
	ErrSignatureInvalid   = New(KindAuthFailure, "content", errors.New("signature verification failed"))
	ErrCapacity           = New(KindCapacity, "queue", errors.New("queue at capacity"))
)
