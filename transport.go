package expect

import "os"

// ExitStatus describes how the child process ended.
type ExitStatus struct {
	Code     int
	Signaled bool
	Signal   string
}

// Transport is the byte-level process abstraction a Session drives: a
// spawned interactive process reachable through read/write plus terminal
// control. The pty subpackage provides the standard implementation.
//
// Read follows io.Reader semantics and must return io.EOF once the stream
// closes; after Wait returns, Read must eventually reach io.EOF. A Session
// owns its Transport exclusively for the Session's lifetime.
type Transport interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Resize(cols, rows uint16) error
	Signal(sig os.Signal) error
	Wait() (ExitStatus, error)
	Close() error
}

// PidReporter is implemented by transports that can expose the child's
// process ID.
type PidReporter interface {
	Pid() int
}
