package dialog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/praxiomlabs/expect"
)

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the runner's structured logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// Runner executes a script's steps, in order, against one session.
type Runner struct {
	script *Script
	logger *slog.Logger
}

// NewRunner builds a runner for script.
func NewRunner(script *Script, opts ...RunnerOption) *Runner {
	r := &Runner{script: script, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes every step against s. The first failing step aborts the run
// with an error naming the step; the underlying expect error is wrapped and
// recoverable with errors.As.
func (r *Runner) Run(ctx context.Context, s *expect.Session) error {
	logger := r.logger.With("script", r.script.Name, "session", s.ID())
	start := time.Now()
	for i, step := range r.script.Steps {
		kind, err := step.kind()
		if err != nil {
			return fmt.Errorf("dialog: step %d: %w", i+1, err)
		}
		logger.Debug("running step", "step", i+1, "kind", kind)
		if err := r.runStep(ctx, s, step, kind); err != nil {
			return fmt.Errorf("dialog: script %q step %d (%s): %w", r.script.Name, i+1, kind, err)
		}
	}
	logger.Debug("script finished", "steps", len(r.script.Steps), "elapsed", time.Since(start))
	return nil
}

func (r *Runner) runStep(ctx context.Context, s *expect.Session, step Step, kind string) error {
	switch kind {
	case "send":
		return s.Send([]byte(*step.Send))
	case "send_line":
		return s.SendLine(*step.SendLine)
	case "wait":
		_, err := s.Wait()
		return err
	case "expect_eof":
		_, err := s.ExpectAny(ctx, expect.EOF, expect.Deadline(r.stepTimeout(step)))
		return err
	default:
		patterns, err := step.patterns()
		if err != nil {
			return err
		}
		patterns = append(patterns, expect.Deadline(r.stepTimeout(step)))
		_, err = s.ExpectAny(ctx, patterns...)
		return err
	}
}

// stepTimeout is the step's own deadline, then the script default, then
// the package-wide default.
func (r *Runner) stepTimeout(step Step) time.Duration {
	if step.Timeout > 0 {
		return time.Duration(step.Timeout)
	}
	if r.script.Timeout > 0 {
		return time.Duration(r.script.Timeout)
	}
	return expect.DefaultTimeout
}
