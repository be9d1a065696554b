package wire

import (
	"errors"
	"fmt"
	"syscall"
)

// Error is a structured internal error carrying the wire Kind it maps to,
// plus enough context (operation, connection fd, wrapped errno) for log
// lines. The wire-visible text always comes from Kind.Bytes(); this type
// exists so diagnostics and propagation share the same vocabulary.
type Error struct {
	Op    string // e.g. "parse", "invoke", "recv"
	Fd    int    // connection fd, 0 if not applicable
	Kind  Kind
	Errno syscall.Errno
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Inner.Error()
	}
	if e.Op != "" {
		if e.Fd != 0 {
			return fmt.Sprintf("rdss: %s (op=%s fd=%d)", msg, e.Op, e.Fd)
		}
		return fmt.Sprintf("rdss: %s (op=%s)", msg, e.Op)
	}
	return fmt.Sprintf("rdss: %s", msg)
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == te.Kind
}

// New builds a structured error for the given wire kind.
func New(op string, kind Kind, msg string) *Error {
	return &Error{Op: op, Kind: kind, Msg: msg}
}

// WrapConn wraps a connection I/O failure with its fd and errno for logging.
func WrapConn(op string, fd int, inner error) *Error {
	if inner == nil {
		return nil
	}
	e := &Error{Op: op, Fd: fd, Inner: inner, Msg: inner.Error()}
	if errno, ok := inner.(syscall.Errno); ok {
		e.Errno = errno
	}
	return e
}

// IsKind reports whether err (or something it wraps) is a *Error of kind k.
func IsKind(err error, k Kind) bool {
	var we *Error
	if errors.As(err, &we) {
		return we.Kind == k
	}
	return false
}
