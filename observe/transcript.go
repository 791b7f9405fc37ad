package observe

import (
	"io"

	"github.com/olebedev/emitter"
	"github.com/pborman/ansi"

	"github.com/praxiomlabs/expect"
	uio "github.com/praxiomlabs/expect/io"
)

// TranscriptOption configures a Transcript.
type TranscriptOption func(*Transcript)

// StripANSI removes ANSI escape sequences before writing, so transcripts
// stay greppable plain text.
func StripANSI() TranscriptOption {
	return func(t *Transcript) { t.strip = true }
}

// Transcript appends every output chunk a session emits to its sinks, in
// arrival order. Sinks can be added and removed while the session runs; a
// late sink starts with the most recent chunk.
type Transcript struct {
	mw    *uio.MultiWriter
	strip bool
}

// NewTranscript builds a transcript recorder over the given sinks.
func NewTranscript(sinks []io.Writer, opts ...TranscriptOption) *Transcript {
	t := &Transcript{mw: uio.NewMultiWriter(sinks...)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Attach subscribes the transcript to em until the returned Detach runs.
func (t *Transcript) Attach(em *emitter.Emitter) Detach {
	return subscribe(em, t.record, nil)
}

// AddSink attaches w, replaying the most recent chunk to it first.
func (t *Transcript) AddSink(w io.Writer) error { return t.mw.Append(w) }

// RemoveSink detaches w.
func (t *Transcript) RemoveSink(w io.Writer) { t.mw.Remove(w) }

func (t *Transcript) record(chunk expect.OutputChunk) {
	data := chunk.Data
	if t.strip {
		if stripped, err := ansi.Strip(data); err == nil {
			data = stripped
		}
	}
	_, _ = t.mw.Write(data)
}
