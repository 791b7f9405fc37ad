// Package resilient wraps a session factory so transient session deaths
// are retried. Retry policy lives here, never in the core engine: the
// engine reports I/O failures and end-of-stream as typed results, and this
// layer decides whether to respawn.
package resilient

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/praxiomlabs/expect"
)

// Factory spawns a fresh session, typically via pty.Spawn.
type Factory func(ctx context.Context) (*expect.Session, error)

// Option configures a Session.
type Option func(*Session)

// WithAttempts caps retries per Do call.
func WithAttempts(n uint) Option {
	return func(s *Session) { s.attempts = n }
}

// WithDelay sets the pause between retries.
func WithDelay(d time.Duration) Option {
	return func(s *Session) { s.delay = d }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithSetup registers a function run against every freshly spawned session
// before it is handed to callers, e.g. a login dialog.
func WithSetup(setup func(context.Context, *expect.Session) error) Option {
	return func(s *Session) { s.setup = setup }
}

const (
	defaultAttempts = 3
	defaultDelay    = 500 * time.Millisecond
)

// Session lazily spawns an underlying expect.Session and respawns it when
// an operation fails because the session died. It adds no matching
// semantics of its own.
type Session struct {
	factory  Factory
	attempts uint
	delay    time.Duration
	logger   *slog.Logger
	setup    func(context.Context, *expect.Session) error

	mu  sync.Mutex
	cur *expect.Session
}

// New builds a resilient session around factory. No process is spawned
// until the first Do or Current call.
func New(factory Factory, opts ...Option) *Session {
	s := &Session{
		factory:  factory,
		attempts: defaultAttempts,
		delay:    defaultDelay,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Current returns the live underlying session, spawning one if needed.
func (s *Session) Current(ctx context.Context) (*expect.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked(ctx)
}

func (s *Session) currentLocked(ctx context.Context) (*expect.Session, error) {
	if s.cur != nil && s.cur.State() == expect.Running {
		return s.cur, nil
	}
	sess, err := s.factory(ctx)
	if err != nil {
		return nil, err
	}
	if s.setup != nil {
		if err := s.setup(ctx, sess); err != nil {
			_ = sess.Kill()
			return nil, err
		}
	}
	s.cur = sess
	return sess, nil
}

// Do runs fn against the current session, respawning and retrying when fn
// fails because the session died. Errors that do not indicate a dead
// session (timeouts, pattern errors) are returned unchanged, immediately.
func (s *Session) Do(ctx context.Context, fn func(*expect.Session) error) error {
	return retry.Do(
		func() error {
			s.mu.Lock()
			sess, err := s.currentLocked(ctx)
			s.mu.Unlock()
			if err != nil {
				return err
			}
			err = fn(sess)
			if err == nil {
				return nil
			}
			if sessionDied(err) {
				s.invalidate(sess)
				return err
			}
			return retry.Unrecoverable(err)
		},
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Debug("respawning session", "attempt", n+1, "error", err)
		}),
	)
}

// Kill tears down the current underlying session, if any.
func (s *Session) Kill() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return nil
	}
	err := s.cur.Kill()
	s.cur = nil
	return err
}

func (s *Session) invalidate(sess *expect.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == sess {
		if sess.State() == expect.Running {
			_ = sess.Kill()
		}
		s.cur = nil
	}
}

// sessionDied reports whether err means the underlying session is gone and
// a respawn could help.
func sessionDied(err error) bool {
	var ioErr *expect.IOError
	var eosErr *expect.EndOfStreamError
	var stErr *expect.StateError
	switch {
	case errors.As(err, &ioErr), errors.As(err, &eosErr):
		return true
	case errors.As(err, &stErr):
		// Terminal-state errors mean the session is dead; a busy token
		// means the caller raced itself and retrying will not help.
		return !stErr.Busy
	default:
		return false
	}
}
