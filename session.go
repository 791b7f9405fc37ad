package expect

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/olebedev/emitter"
	"github.com/rs/xid"
)

const (
	// DefaultTimeout bounds expect calls that carry no Deadline pattern.
	DefaultTimeout = 30 * time.Second

	defaultChunkSize  = 4096
	defaultEmitterCap = 64
	defaultCols       = 80
	defaultRows       = 24
)

// Option configures a Session at spawn time.
type Option func(*Session)

// WithLogger sets the session's structured logger. Defaults to a logger
// that discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithDefaultTimeout sets the deadline applied to expect calls that carry
// no explicit Deadline pattern. Non-positive means no default deadline.
func WithDefaultTimeout(d time.Duration) Option {
	return func(s *Session) { s.defaultTimeout = d }
}

// WithEmitter shares a caller-owned emitter instead of a per-session one,
// so one observer set can watch many sessions.
func WithEmitter(em *emitter.Emitter) Option {
	return func(s *Session) { s.em = em }
}

// WithID overrides the generated session ID.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// WithReadChunkSize sets the reader's per-read buffer size.
func WithReadChunkSize(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// WithSize records the transport's initial terminal dimensions.
func WithSize(cols, rows uint16) Option {
	return func(s *Session) { s.cols, s.rows = cols, rows }
}

// Session owns one Transport, the output buffer, and the reader goroutine
// that connects them. All methods are safe for concurrent use, but a
// Session admits one outstanding expect and one outstanding send at a time:
// a second concurrent call fails fast with a StateError rather than
// queueing behind the first.
type Session struct {
	id             string
	t              Transport
	buf            *buffer
	em             *emitter.Emitter
	logger         *slog.Logger
	defaultTimeout time.Duration
	chunkSize      int

	notify chan struct{}
	closed chan struct{}

	expectTok chan struct{}
	sendTok   chan struct{}

	mu         sync.Mutex
	state      State
	fatal      *IOError
	exit       *ExitStatus
	waitErr    error
	cols, rows uint16

	waitOnce sync.Once
}

// Spawn wraps an already-started Transport in a Session and starts the
// reader goroutine. The Session owns the Transport from here on.
func Spawn(t Transport, opts ...Option) (*Session, error) {
	if t == nil {
		return nil, errors.New("expect: nil transport")
	}
	s := &Session{
		id:             xid.New().String(),
		t:              t,
		buf:            &buffer{},
		defaultTimeout: DefaultTimeout,
		chunkSize:      defaultChunkSize,
		notify:         make(chan struct{}, 1),
		closed:         make(chan struct{}),
		expectTok:      make(chan struct{}, 1),
		sendTok:        make(chan struct{}, 1),
		state:          Running,
		cols:           defaultCols,
		rows:           defaultRows,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.em == nil {
		s.em = emitter.New(defaultEmitterCap)
	}
	// Slow observers lose events rather than stalling the reader or the
	// race loop.
	s.em.Use("*", emitter.Skip)

	s.expectTok <- struct{}{}
	s.sendTok <- struct{}{}

	s.logger = s.logger.With("session", s.id)
	go s.readLoop()

	s.logger.Debug("session spawned")
	s.emitLifecycle(LifecycleEvent{Type: EventSpawned})
	return s, nil
}

// readLoop pulls fixed-size chunks from the transport and appends them to
// the buffer until the stream ends. It is the buffer's only writer.
func (s *Session) readLoop() {
	defer close(s.closed)
	chunk := make([]byte, s.chunkSize)
	for {
		n, err := s.t.Read(chunk)
		if n > 0 {
			s.buf.append(chunk[:n])
			s.emitOutput(chunk[:n])
			select {
			case s.notify <- struct{}{}:
			default:
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Debug("stream closed", "buffered", s.buf.len())
				s.emitLifecycle(LifecycleEvent{Type: EventEndOfStream})
			} else if s.setFatal("read", err) {
				s.logger.Error("transport read failed", "error", err)
			}
			return
		}
	}
}

// setFatal transitions Running to Errored on the first fatal transport
// failure. Later failures (e.g. reads racing a Kill) are ignored.
func (s *Session) setFatal(op string, err error) bool {
	s.mu.Lock()
	if s.state != Running {
		s.mu.Unlock()
		return false
	}
	s.state = Errored
	s.fatal = &IOError{Op: op, Err: err}
	s.mu.Unlock()
	s.emitLifecycle(LifecycleEvent{Type: EventErrored, Err: err})
	return true
}

func (s *Session) fatalErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fatal == nil {
		return nil
	}
	return s.fatal
}

// Expect waits for pattern, end of stream, or the session's default
// deadline, whichever resolves first. It is shorthand for
// ExpectAny(ctx, pattern, EOF, Deadline(default)).
func (s *Session) Expect(ctx context.Context, pattern Pattern) (*MatchResult, error) {
	return s.ExpectAny(ctx, pattern, EOF, Deadline(s.defaultTimeout))
}

// ExpectAny races the given patterns against incoming data, stream closure
// and the deadline. Pattern priority is list position. On a win the buffer
// is consumed through the match end; on timeout or end-of-stream error the
// buffer is left untouched. Cancelling ctx abandons the call without
// disturbing the reader, the transport, or any buffered bytes.
func (s *Session) ExpectAny(ctx context.Context, patterns ...Pattern) (*MatchResult, error) {
	if err := s.checkRunning("expect"); err != nil {
		return nil, err
	}
	select {
	case <-s.expectTok:
	default:
		return nil, &StateError{Op: "expect", State: s.State(), Busy: true}
	}
	defer func() { s.expectTok <- struct{}{} }()

	eng := &engine{
		buf:            s.buf,
		notify:         s.notify,
		closed:         s.closed,
		readErr:        s.fatalErr,
		defaultTimeout: s.defaultTimeout,
	}
	start := time.Now()
	res, err := eng.run(ctx, patterns)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		if res.EOF {
			s.markExited()
		}
		winner := patterns[res.PatternIndex].String()
		s.logger.Debug("pattern matched", "pattern", winner, "offset", len(res.Before), "elapsed", elapsed)
		s.emitLifecycle(LifecycleEvent{Type: EventMatched, Pattern: winner, Elapsed: elapsed})
	case isTimeout(err):
		s.logger.Debug("expect timed out", "patterns", patternStrings(patterns))
		s.emitLifecycle(LifecycleEvent{Type: EventTimedOut, Err: err, Elapsed: elapsed})
	case isEndOfStream(err):
		s.markExited()
	}
	return res, err
}

func isTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

func isEndOfStream(err error) bool {
	var ee *EndOfStreamError
	return errors.As(err, &ee)
}

// markExited transitions Running to Exited once end-of-stream has been
// delivered to a caller.
func (s *Session) markExited() {
	s.mu.Lock()
	if s.state == Running {
		s.state = Exited
	}
	s.mu.Unlock()
}

// Send writes p to the transport in full. A write failure is fatal: the
// session transitions to Errored.
func (s *Session) Send(p []byte) error {
	if err := s.checkRunning("send"); err != nil {
		return err
	}
	select {
	case <-s.sendTok:
	default:
		return &StateError{Op: "send", State: s.State(), Busy: true}
	}
	defer func() { s.sendTok <- struct{}{} }()

	for len(p) > 0 {
		n, err := s.t.Write(p)
		if err != nil {
			s.setFatal("write", err)
			return &IOError{Op: "write", Err: err}
		}
		p = p[n:]
	}
	return nil
}

// SendLine writes text followed by a newline.
func (s *Session) SendLine(text string) error {
	return s.Send(append([]byte(text), '\n'))
}

// Resize forwards new terminal dimensions to the transport.
func (s *Session) Resize(cols, rows uint16) error {
	if err := s.checkRunning("resize"); err != nil {
		return err
	}
	if err := s.t.Resize(cols, rows); err != nil {
		return &IOError{Op: "resize", Err: err}
	}
	s.mu.Lock()
	s.cols, s.rows = cols, rows
	s.mu.Unlock()
	s.logger.Debug("session resized", "cols", cols, "rows", rows)
	return nil
}

// Kill terminates the child process and closes the transport. The session
// transitions to Killed; buffered bytes and Wait remain accessible.
func (s *Session) Kill() error {
	s.mu.Lock()
	if s.state != Running {
		st := s.state
		s.mu.Unlock()
		return &StateError{Op: "kill", State: st}
	}
	s.state = Killed
	s.mu.Unlock()

	var result *multierror.Error
	if err := s.t.Signal(os.Kill); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.t.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	s.logger.Debug("session killed")
	s.emitLifecycle(LifecycleEvent{Type: EventKilled})
	return result.ErrorOrNil()
}

// Wait blocks until the child process exits and the reader has drained the
// stream, then reports the exit status. It is valid in every state and
// idempotent; a session still Running transitions to Exited.
func (s *Session) Wait() (ExitStatus, error) {
	s.waitOnce.Do(func() {
		status, err := s.t.Wait()
		<-s.closed

		s.mu.Lock()
		s.exit = &status
		s.waitErr = err
		if s.state == Running {
			s.state = Exited
		}
		s.mu.Unlock()

		s.logger.Debug("session exited", "code", status.Code, "signaled", status.Signaled)
		s.emitLifecycle(LifecycleEvent{Type: EventExited, Status: &status})
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.exit, s.waitErr
}

func (s *Session) checkRunning(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Running {
		return &StateError{Op: op, State: s.state}
	}
	return nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pid returns the child's process ID, or -1 when the transport does not
// expose one.
func (s *Session) Pid() int {
	if pr, ok := s.t.(PidReporter); ok {
		return pr.Pid()
	}
	return -1
}

// Dimensions returns the last terminal size set on the session.
func (s *Session) Dimensions() (cols, rows uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cols, s.rows
}

// Consumed is the total number of buffer bytes delivered to expect calls.
func (s *Session) Consumed() int64 { return s.buf.consumed() }

// Events exposes the session's emitter. Observers subscribe to TopicOutput
// and TopicLifecycle; delivery is best effort and never blocks the engine.
func (s *Session) Events() *emitter.Emitter { return s.em }

func (s *Session) emitOutput(p []byte) {
	s.em.Emit(TopicOutput, OutputChunk{SessionID: s.id, Data: cloneBytes(p)})
}

func (s *Session) emitLifecycle(evt LifecycleEvent) {
	evt.SessionID = s.id
	s.em.Emit(TopicLifecycle, evt)
}
