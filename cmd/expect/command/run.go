package command

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/shlex"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/praxiomlabs/expect"
	"github.com/praxiomlabs/expect/dialog"
	"github.com/praxiomlabs/expect/internal/logging"
	"github.com/praxiomlabs/expect/observe"
	"github.com/praxiomlabs/expect/pty"
)

func runCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "run <script.yaml> [-- command [args...]]",
		Short: "Run a dialog script against a spawned command",
		Long: `Run spawns a command under a pseudo-terminal and executes the script's
send/expect steps against it. The command comes from the arguments after
"--", or from the script's spawn field.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if err := bindFlags(c.Flags(), v); err != nil {
				return err
			}
			return runRun(c.Context(), v, args)
		},
	}

	cmd.Flags().Duration("timeout", expect.DefaultTimeout, "default deadline for expect steps")
	cmd.Flags().Uint16("cols", 80, "terminal columns")
	cmd.Flags().Uint16("rows", 24, "terminal rows")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().String("log-file", "", "also log to this file")
	cmd.Flags().String("transcript", "", "write session output to this file ('-' for stdout)")
	cmd.Flags().Bool("strip-ansi", false, "strip ANSI escape sequences from the transcript")
	cmd.Flags().String("metrics-addr", "", "serve prometheus metrics on this address")

	return cmd
}

func runRun(ctx context.Context, v *viper.Viper, args []string) error {
	logger, err := newLogger(v)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	script, err := dialog.LoadFile(args[0])
	if err != nil {
		return err
	}

	argv := args[1:]
	if len(argv) == 0 && script.Spawn != "" {
		argv, err = shlex.Split(script.Spawn)
		if err != nil {
			return fmt.Errorf("split spawn command: %w", err)
		}
	}
	if len(argv) == 0 {
		return fmt.Errorf("no command: pass one after -- or set spawn in the script")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sess, err := pty.Spawn(ctx, argv[0], argv[1:],
		[]pty.Option{pty.WithSize(uint16(v.GetUint("cols")), uint16(v.GetUint("rows")))},
		expect.WithLogger(logger.Logger),
		expect.WithDefaultTimeout(v.GetDuration("timeout")),
	)
	if err != nil {
		return fmt.Errorf("spawn %q: %w", argv[0], err)
	}

	detach, err := attachObservers(v, sess, logger.Logger)
	if err != nil {
		_ = sess.Kill()
		return err
	}
	defer detach()

	var g run.Group
	{
		// dialog
		g.Add(func() error {
			runner := dialog.NewRunner(script, dialog.WithLogger(logger.Logger))
			if err := runner.Run(ctx, sess); err != nil {
				return err
			}
			status, err := sess.Wait()
			if err != nil {
				return err
			}
			if status.Code != 0 {
				return &ExitError{Code: status.Code}
			}
			return nil
		}, func(err error) {
			if sess.State() == expect.Running {
				_ = sess.Kill()
			}
			cancel()
		})
	}
	{
		// signals
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		g.Add(func() error {
			select {
			case sig := <-sigCh:
				return fmt.Errorf("received signal %s", sig)
			case <-ctx.Done():
				return ctx.Err()
			}
		}, func(err error) {
			signal.Stop(sigCh)
			cancel()
		})
	}
	if addr := v.GetString("metrics-addr"); addr != "" {
		srv := &metricServer{}
		g.Add(func() error {
			logger.Info("serving metrics", "addr", addr)
			return srv.ListenAndServe(addr)
		}, func(err error) {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
		})
	}

	return g.Run()
}

func newLogger(v *viper.Viper) (*logging.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString("log-level"))); err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	opts := []logging.Option{
		logging.Level(level),
		logging.Sentry(os.Getenv("EXPECT_SENTRY_DSN")),
	}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		opts = append(opts, logging.Text())
	}
	if path := v.GetString("log-file"); path != "" {
		opts = append(opts, logging.File(path))
	}
	return logging.New(opts...)
}

// attachObservers wires the transcript and metrics observers to the
// session emitter per the flags; the returned func detaches them all.
func attachObservers(v *viper.Viper, sess *expect.Session, logger *slog.Logger) (func(), error) {
	var detaches []observe.Detach

	if path := v.GetString("transcript"); path != "" {
		sink := os.Stdout
		if path != "-" {
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
			if err != nil {
				return nil, fmt.Errorf("open transcript: %w", err)
			}
			sink = f
		}
		var topts []observe.TranscriptOption
		if v.GetBool("strip-ansi") {
			topts = append(topts, observe.StripANSI())
		}
		tr := observe.NewTranscript([]io.Writer{sink}, topts...)
		detaches = append(detaches, tr.Attach(sess.Events()))
	}

	if v.GetString("metrics-addr") != "" {
		m, err := observe.NewMetrics(prometheus.DefaultRegisterer)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		detaches = append(detaches, m.Attach(sess.Events()))
	}

	logger.Debug("observers attached", "count", len(detaches))
	return func() {
		for _, d := range detaches {
			d()
		}
	}, nil
}
