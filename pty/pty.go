//go:build !windows

// Package pty provides the standard expect.Transport: a child process
// attached to a pseudo-terminal.
package pty

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	ptylib "github.com/creack/pty"

	"github.com/praxiomlabs/expect"
)

const (
	defaultCols = 80
	defaultRows = 24
)

// Option configures the pty before the child starts.
type Option func(*config)

type config struct {
	cols, rows uint16
	dir        string
	env        []string
}

// WithSize sets the initial terminal dimensions.
func WithSize(cols, rows uint16) Option {
	return func(c *config) { c.cols, c.rows = cols, rows }
}

// WithDir sets the child's working directory.
func WithDir(dir string) Option {
	return func(c *config) { c.dir = dir }
}

// WithEnv sets the child's environment. Defaults to the parent's.
func WithEnv(env []string) Option {
	return func(c *config) { c.env = env }
}

// Transport runs a child process inside a pseudo-terminal. Reads bypass the
// mutex: os.File unblocks them on Close through the runtime poller, and a
// blocked Read must never keep Close from running.
type Transport struct {
	mu   sync.RWMutex
	f    *os.File
	cmd  *exec.Cmd
	cols uint16
	rows uint16

	waitOnce sync.Once
	status   expect.ExitStatus
	waitErr  error
}

// Start launches cmd attached to a new pty.
func Start(cmd *exec.Cmd, opts ...Option) (*Transport, error) {
	cfg := &config{cols: defaultCols, rows: defaultRows}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.dir != "" {
		cmd.Dir = cfg.dir
	}
	if cfg.env != nil {
		cmd.Env = cfg.env
	}

	f, err := ptylib.StartWithSize(cmd, &ptylib.Winsize{Cols: cfg.cols, Rows: cfg.rows})
	if err != nil {
		return nil, err
	}
	return &Transport{f: f, cmd: cmd, cols: cfg.cols, rows: cfg.rows}, nil
}

// Spawn starts name with args under a new pty and wraps it in a Session.
func Spawn(ctx context.Context, name string, args []string, popts []Option, sopts ...expect.Option) (*expect.Session, error) {
	cfg := &config{cols: defaultCols, rows: defaultRows}
	for _, opt := range popts {
		opt(cfg)
	}
	t, err := Start(exec.CommandContext(ctx, name, args...), popts...)
	if err != nil {
		return nil, err
	}
	sopts = append(sopts, expect.WithSize(cfg.cols, cfg.rows))
	return expect.Spawn(t, sopts...)
}

// Read pulls the next available output chunk. The Linux kernel returns EIO
// from a pty master whose slave side is gone, which is this transport's
// end-of-stream; it is reported as io.EOF.
// See https://github.com/creack/pty/issues/21.
func (t *Transport) Read(p []byte) (int, error) {
	n, err := t.f.Read(p)
	return n, ptyError(err)
}

func (t *Transport) Write(p []byte) (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.f.Write(p)
}

// Resize changes the pty window size.
func (t *Transport) Resize(cols, rows uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ptylib.Setsize(t.f, &ptylib.Winsize{Cols: cols, Rows: rows}); err != nil {
		return err
	}
	t.cols, t.rows = cols, rows
	return nil
}

// Signal delivers sig to the child process.
func (t *Transport) Signal(sig os.Signal) error {
	if t.cmd.Process == nil {
		return errors.New("pty: process not started")
	}
	return t.cmd.Process.Signal(sig)
}

// Wait blocks until the child exits and reports its status. Safe to call
// from multiple goroutines; the underlying wait happens once.
func (t *Transport) Wait() (expect.ExitStatus, error) {
	t.waitOnce.Do(func() {
		err := t.cmd.Wait()
		var exitErr *exec.ExitError
		switch {
		case err == nil:
		case errors.As(err, &exitErr):
			// Nonzero exit or death by signal is a status, not an error.
		default:
			t.waitErr = err
			return
		}
		t.status = exitStatus(t.cmd.ProcessState)
	})
	return t.status, t.waitErr
}

// Close closes the pty master. Any blocked Read returns once the fd is
// gone.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.f.Close()
}

// Pid returns the child's process ID.
func (t *Transport) Pid() int {
	if t.cmd.Process == nil {
		return -1
	}
	return t.cmd.Process.Pid
}

func exitStatus(ps *os.ProcessState) expect.ExitStatus {
	st := expect.ExitStatus{Code: ps.ExitCode()}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		st.Signaled = true
		st.Signal = ws.Signal().String()
	}
	return st
}

// ptyError maps the EIO a pty master reports after its slave closes onto
// io.EOF so readers observe a normal end of stream.
func ptyError(err error) error {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) && pathErr.Err == syscall.EIO {
		return io.EOF
	}
	return err
}
