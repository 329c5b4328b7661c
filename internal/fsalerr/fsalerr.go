// Package fsalerr defines the error-kind taxonomy handlers translate into
// wire-level success/failure responses.
package fsalerr

import "fmt"

// Kind is one of the error categories handlers and the indexer surface.
// None of these ever panic or unwind across the socket boundary; they are
// always converted to a <success>false</success>/<error> response or, for
// ProtocolError, a silently closed connection.
type Kind string

const (
	// InvalidPath means a path failed validation: escaped its base, was
	// empty, or did not canonicalise cleanly.
	InvalidPath Kind = "invalid_path"
	// NotFound means a path was not present in the index when required.
	NotFound Kind = "not_found"
	// AlreadyExists means a transfer destination collided with an
	// existing path.
	AlreadyExists Kind = "already_exists"
	// LimitExceeded means a transfer entry exceeded the path-length limit.
	LimitExceeded Kind = "limit_exceeded"
	// FilesystemError wraps an underlying stat/unlink/rmtree/move failure.
	FilesystemError Kind = "filesystem_error"
	// ProtocolError means the request XML was malformed.
	ProtocolError Kind = "protocol_error"
	// NotificationSourceUnavailable means the ONDD socket could not be reached.
	NotificationSourceUnavailable Kind = "notification_source_unavailable"
	// ConnectError means a client could not open the daemon's socket.
	ConnectError Kind = "connect_error"
)

// Error is the single error type carried through the indexer and handler
// layers. It always has a Kind and a human-readable message; Cause is
// optional and preserved for logging/errors.Is chains.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, &fsalerr.Error{Kind: fsalerr.NotFound}) match by
// kind alone; a target that also carries a Message or Cause must match the
// message too. KindOf below reads the kind without building a target.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message == "" && t.Cause == nil {
		return e.Kind == t.Kind
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// New builds a *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a *Error of the given kind, preserving cause for logging.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the Kind of err if it is (or wraps) a *Error, and ok=false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if ok := asError(err, &fe); ok {
		return fe.Kind, true
	}
	return "", false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if fe, ok := err.(*Error); ok {
			*target = fe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
