package mixvol

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned by level setters for values outside [0, 100]
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrProcessNotFound is returned when a pid no longer maps to a running process
	ErrProcessNotFound = errors.New("process not found")
)

// SessionNotFoundError is returned by Resolver.Bind when no live session belongs to the requested process
type SessionNotFoundError struct {
	ProcessName string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("audio session for process %q not found", e.ProcessName)
}

// UnknownStateError is returned when a raw state code has no matching enum value
type UnknownStateError struct {
	Kind string // "device" or "session"
	Raw  uint32
}

func (e *UnknownStateError) Error() string {
	return fmt.Sprintf("unknown %s state: %#x", e.Kind, e.Raw)
}

func invalidLevel(level int) error {
	return fmt.Errorf("%w: level %d outside [0, 100]", ErrInvalidArgument, level)
}
