// Package expect automates interactive terminal sessions. It spawns a child
// process behind a Transport (typically a pseudo-terminal, see the pty
// subpackage), accumulates its output in a session-owned buffer, and suspends
// callers until a declared pattern appears, the stream closes, or a deadline
// elapses.
//
// The heart of the package is the race loop behind Session.ExpectAny: the
// unconsumed buffer is rescanned against every byte pattern whenever new data
// arrives, the earliest match by start offset wins (declaration order breaks
// ties), and end-of-stream or a timeout resolve the call only when no byte
// pattern can. A match that is already buffered when the stream closes is
// always reported as a match, never as end-of-stream.
//
// Sessions publish every appended output chunk and every lifecycle event
// through an emitter; transcript recording, metrics, and similar concerns
// attach there (see the observe package) without influencing match outcomes.
package expect
