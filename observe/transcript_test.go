package observe

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/olebedev/emitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxiomlabs/expect"
)

// safeBuffer guards a bytes.Buffer against the observer goroutine.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestTranscript_RecordsChunksInOrder(t *testing.T) {
	var sink bytes.Buffer
	tr := NewTranscript([]io.Writer{&sink})

	tr.record(expect.OutputChunk{SessionID: "s1", Data: []byte("first ")})
	tr.record(expect.OutputChunk{SessionID: "s1", Data: []byte("second")})

	assert.Equal(t, "first second", sink.String())
}

func TestTranscript_StripANSI(t *testing.T) {
	var sink bytes.Buffer
	tr := NewTranscript([]io.Writer{&sink}, StripANSI())

	tr.record(expect.OutputChunk{Data: []byte("\x1b[1;31merror\x1b[0m: gone")})

	assert.Equal(t, "error: gone", sink.String())
}

func TestTranscript_LateSinkReplaysLastChunk(t *testing.T) {
	var first bytes.Buffer
	tr := NewTranscript([]io.Writer{&first})

	tr.record(expect.OutputChunk{Data: []byte("prompt> ")})

	var late bytes.Buffer
	require.NoError(t, tr.AddSink(&late))
	assert.Equal(t, "prompt> ", late.String())

	tr.record(expect.OutputChunk{Data: []byte("ls\n")})
	assert.Equal(t, "prompt> ls\n", first.String())
	assert.Equal(t, "prompt> ls\n", late.String())

	tr.RemoveSink(&late)
	tr.record(expect.OutputChunk{Data: []byte("more")})
	assert.Equal(t, "prompt> ls\n", late.String())
}

func TestTranscript_AttachReceivesEmittedOutput(t *testing.T) {
	var sink safeBuffer
	tr := NewTranscript([]io.Writer{&sink})

	em := emitter.New(16)
	detach := tr.Attach(em)
	defer detach()

	<-em.Emit(expect.TopicOutput, expect.OutputChunk{SessionID: "s1", Data: []byte("streamed")})

	require.Eventually(t, func() bool {
		return sink.String() == "streamed"
	}, time.Second, 5*time.Millisecond)
}

func TestTranscript_DetachStopsRecording(t *testing.T) {
	var sink safeBuffer
	tr := NewTranscript([]io.Writer{&sink})

	em := emitter.New(16)
	detach := tr.Attach(em)

	<-em.Emit(expect.TopicOutput, expect.OutputChunk{Data: []byte("before")})
	require.Eventually(t, func() bool { return sink.String() == "before" }, time.Second, 5*time.Millisecond)

	detach()
	em.Emit(expect.TopicOutput, expect.OutputChunk{Data: []byte("after")})

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, "before", sink.String())
}
