package expect

import (
	"fmt"
	"strings"
	"time"
)

// State is the lifecycle state of a Session. All states but Running are
// terminal: once a Session leaves Running, expect/send/resize/kill fail with
// a StateError and only Wait and the read-only accessors remain valid.
type State int

const (
	Running State = iota
	Exited
	Killed
	Errored
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Exited:
		return "exited"
	case Killed:
		return "killed"
	case Errored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// PatternError reports an invalid pattern expression. It is returned at
// construction time; an invalid pattern never reaches the race loop.
type PatternError struct {
	Kind PatternKind
	Expr string
	Err  error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("expect: invalid %s pattern %q: %v", e.Kind, e.Expr, e.Err)
}

func (e *PatternError) Unwrap() error { return e.Err }

// TimeoutError is returned when the deadline elapses before any pattern
// wins. The Session remains Running and reusable; Snapshot is a copy of the
// unconsumed buffer at expiry.
type TimeoutError struct {
	Deadline time.Duration
	Elapsed  time.Duration
	Patterns []string
	Snapshot []byte
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("expect: timed out after %v waiting for %s (%d bytes buffered)",
		e.Elapsed.Round(time.Millisecond), strings.Join(e.Patterns, ", "), len(e.Snapshot))
}

// EndOfStreamError is returned when the stream closes with no byte-pattern
// winner and EOF was not in the active pattern set. Snapshot is a copy of
// the unconsumed buffer at closure.
type EndOfStreamError struct {
	Patterns []string
	Snapshot []byte
}

func (e *EndOfStreamError) Error() string {
	return fmt.Sprintf("expect: stream closed while waiting for %s (%d bytes buffered)",
		strings.Join(e.Patterns, ", "), len(e.Snapshot))
}

// IOError wraps a fatal transport failure. It transitions the Session to
// Errored; every later operation fails with a StateError.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("expect: transport %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// StateError reports an operation attempted on a non-Running Session, or a
// second concurrent expect/send on a Session whose token is already held.
type StateError struct {
	Op    string
	State State
	Busy  bool
}

func (e *StateError) Error() string {
	if e.Busy {
		return fmt.Sprintf("expect: %s already in flight on session", e.Op)
	}
	return fmt.Sprintf("expect: cannot %s: session is %s", e.Op, e.State)
}
