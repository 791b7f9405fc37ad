package expect

import (
	"fmt"
	"time"
)

// Emitter topics. Observers subscribe with Session.Events().On(topic);
// topics carry OutputChunk and LifecycleEvent values respectively.
const (
	TopicOutput    = "session:output"
	TopicLifecycle = "session:lifecycle"
)

// EventType classifies lifecycle events.
type EventType int

const (
	EventSpawned EventType = iota
	EventMatched
	EventTimedOut
	EventEndOfStream
	EventExited
	EventKilled
	EventErrored
)

func (t EventType) String() string {
	switch t {
	case EventSpawned:
		return "spawned"
	case EventMatched:
		return "matched"
	case EventTimedOut:
		return "timed_out"
	case EventEndOfStream:
		return "end_of_stream"
	case EventExited:
		return "exited"
	case EventKilled:
		return "killed"
	case EventErrored:
		return "errored"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// OutputChunk is published on TopicOutput for every raw chunk the reader
// appends to the buffer, before any match is attempted. Data is a copy.
type OutputChunk struct {
	SessionID string
	Data      []byte
}

// LifecycleEvent is published on TopicLifecycle as the session moves
// through its life: spawn, match, timeout, end-of-stream, exit, kill,
// error. Pattern, Err, Status and Elapsed are set where they apply;
// Elapsed is the expect call duration on match and timeout events.
type LifecycleEvent struct {
	Type      EventType
	SessionID string
	Pattern   string
	Err       error
	Status    *ExitStatus
	Elapsed   time.Duration
}
