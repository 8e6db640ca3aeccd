// errors.go - Error taxonomy for the client engine

package minimgo

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument is wrapped by every validation failure detected
// before a command leaves the process: bad namespaces, ambiguous
// update/replacement bodies, malformed index specifications and the
// like. Errors of this kind are never retried and never reach the wire.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrNotFound is returned when a single-document lookup matches
// nothing. The findAndModify family does not use it; those calls report
// "no document" as a nil image instead.
var ErrNotFound = errors.New("not found")

// ErrMultipleIndexDrop is returned when DropOne is given the "*"
// wildcard, which is reserved for DropAll.
var ErrMultipleIndexDrop = fmt.Errorf("%w: cannot drop multiple indexes by name, use DropAll", ErrInvalidArgument)

// unknownErrorMessage is the fallback when a failed command carries no
// errmsg field.
const unknownErrorMessage = "Unknown error"

// CommandError reports a command the server executed and rejected
// (response with a falsy ok field). Transport-level failures are not
// CommandErrors; they propagate from the underlying driver unchanged.
type CommandError struct {
	Code    int32
	Message string
}

func (e *CommandError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
	}
	return e.Message
}

// invalidArgf builds an error wrapping ErrInvalidArgument so callers
// can match the whole family with errors.Is.
func invalidArgf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
