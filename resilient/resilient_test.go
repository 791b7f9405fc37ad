package resilient

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxiomlabs/expect"
)

// stubTransport is a minimal in-memory Transport whose output side the test
// controls directly.
type stubTransport struct {
	r *io.PipeReader
	w *io.PipeWriter

	exitOnce sync.Once
	exited   chan struct{}
}

func newStubTransport() *stubTransport {
	r, w := io.Pipe()
	return &stubTransport{r: r, w: w, exited: make(chan struct{})}
}

func (st *stubTransport) feed(s string) { _, _ = st.w.Write([]byte(s)) }

func (st *stubTransport) exit() {
	st.exitOnce.Do(func() {
		_ = st.w.Close()
		close(st.exited)
	})
}

func (st *stubTransport) Read(p []byte) (int, error)  { return st.r.Read(p) }
func (st *stubTransport) Write(p []byte) (int, error) { return len(p), nil }
func (st *stubTransport) Resize(cols, rows uint16) error {
	return nil
}

func (st *stubTransport) Signal(sig os.Signal) error {
	st.exit()
	return nil
}

func (st *stubTransport) Wait() (expect.ExitStatus, error) {
	<-st.exited
	return expect.ExitStatus{Code: 0}, nil
}

func (st *stubTransport) Close() error {
	st.exit()
	return nil
}

// countingFactory spawns sessions over fresh stub transports and remembers
// them so tests can end individual streams.
type countingFactory struct {
	mu         sync.Mutex
	spawned    int
	transports []*stubTransport
	sessions   []*expect.Session
}

func (f *countingFactory) factory(ctx context.Context) (*expect.Session, error) {
	st := newStubTransport()
	sess, err := expect.Spawn(st)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.spawned++
	f.transports = append(f.transports, st)
	f.sessions = append(f.sessions, sess)
	f.mu.Unlock()
	return sess, nil
}

func (f *countingFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.spawned
}

func (f *countingFactory) last() *stubTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transports[len(f.transports)-1]
}

func (f *countingFactory) lastSession() *expect.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[len(f.sessions)-1]
}

func TestSession_LazySpawn(t *testing.T) {
	f := &countingFactory{}
	rs := New(f.factory)
	assert.Equal(t, 0, f.count())

	sess, err := rs.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.count())

	// A healthy session is reused, not respawned.
	again, err := rs.Current(context.Background())
	require.NoError(t, err)
	assert.Same(t, sess, again)
	assert.Equal(t, 1, f.count())
}

func TestSession_RespawnsDeadSession(t *testing.T) {
	f := &countingFactory{}
	rs := New(f.factory)

	first, err := rs.Current(context.Background())
	require.NoError(t, err)
	require.NoError(t, first.Kill())

	second, err := rs.Current(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, 2, f.count())
}

func TestSession_DoRetriesWhenStreamEnds(t *testing.T) {
	f := &countingFactory{}
	rs := New(f.factory, WithDelay(time.Millisecond))

	calls := 0
	err := rs.Do(context.Background(), func(s *expect.Session) error {
		calls++
		if calls == 1 {
			// Kill the child out from under the call; the next attempt
			// gets a fresh session.
			f.last().exit()
			_, err := s.ExpectAny(context.Background(), expect.Literal("never"), expect.Deadline(time.Second))
			return err
		}
		f.last().feed("ready\n")
		_, err := s.ExpectAny(context.Background(), expect.Literal("ready"), expect.Deadline(time.Second))
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, f.count())
}

func TestSession_DoDoesNotRetryTimeouts(t *testing.T) {
	f := &countingFactory{}
	rs := New(f.factory, WithDelay(time.Millisecond))

	calls := 0
	err := rs.Do(context.Background(), func(s *expect.Session) error {
		calls++
		_, err := s.ExpectAny(context.Background(), expect.Literal("never"), expect.Deadline(20*time.Millisecond))
		return err
	})

	var terr *expect.TimeoutError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, f.count())
}

func TestSession_DoGivesUpAfterAttempts(t *testing.T) {
	f := &countingFactory{}
	rs := New(f.factory, WithAttempts(2), WithDelay(time.Millisecond))

	calls := 0
	err := rs.Do(context.Background(), func(s *expect.Session) error {
		calls++
		f.last().exit()
		_, err := s.ExpectAny(context.Background(), expect.Literal("never"), expect.Deadline(time.Second))
		return err
	})

	var eerr *expect.EndOfStreamError
	require.ErrorAs(t, err, &eerr)
	assert.Equal(t, 2, calls)
}

func TestSession_SetupRunsPerSpawn(t *testing.T) {
	f := &countingFactory{}
	setups := 0
	rs := New(f.factory, WithSetup(func(ctx context.Context, s *expect.Session) error {
		setups++
		return nil
	}))

	_, err := rs.Current(context.Background())
	require.NoError(t, err)
	require.NoError(t, rs.Kill())

	_, err = rs.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, setups)
}

func TestSession_SetupFailureKillsSpawn(t *testing.T) {
	f := &countingFactory{}
	boom := errors.New("login refused")
	rs := New(f.factory, WithSetup(func(ctx context.Context, s *expect.Session) error {
		return boom
	}))

	_, err := rs.Current(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, expect.Killed, f.lastSession().State())
}

func TestSession_KillWithoutSpawnIsNoop(t *testing.T) {
	rs := New((&countingFactory{}).factory)
	assert.NoError(t, rs.Kill())
}

func TestSessionDied(t *testing.T) {
	assert.True(t, sessionDied(&expect.IOError{Op: "read", Err: errors.New("gone")}))
	assert.True(t, sessionDied(&expect.EndOfStreamError{}))
	assert.True(t, sessionDied(&expect.StateError{Op: "expect", State: expect.Exited}))
	assert.False(t, sessionDied(&expect.StateError{Op: "expect", Busy: true}))
	assert.False(t, sessionDied(&expect.TimeoutError{}))
	assert.False(t, sessionDied(errors.New("arbitrary")))
}
