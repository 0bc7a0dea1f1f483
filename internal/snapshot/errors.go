package snapshot

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Match with errors.Is.
var (
	ErrDuplicateID   = errors.New("duplicate snapshot id")
	ErrNotFound      = errors.New("snapshot not found")
	ErrInvalidState  = errors.New("invalid snapshot state")
	ErrClock         = errors.New("non-monotonic snapshot id")
	ErrConcurrentRun = errors.New("backup set is busy")
	ErrExecutor      = errors.New("executor failed")
)

// Error carries the operation context of a lifecycle failure.
type Error struct {
	Op   string
	Set  string
	ID   ID
	Kind error
	Err  error
}

// Errorf builds an *Error of the given kind. The cause may be nil.
func Errorf(op, set string, id ID, kind error, cause error) *Error {
	return &Error{Op: op, Set: set, ID: id, Kind: kind, Err: cause}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Set != "" {
		fmt.Fprintf(&b, " set=%s", e.Set)
	}
	if e.ID != "" {
		fmt.Fprintf(&b, " id=%s", e.ID)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
