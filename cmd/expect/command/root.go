// Package command wires the expect CLI: cobra commands, viper-backed
// configuration, and the run command that executes dialog scripts against
// a pty-spawned process.
package command

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func Root() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "expect",
		Short: "Automate interactive terminal sessions",
		Long: `Expect spawns a command under a pseudo-terminal, feeds it input, and
waits for output patterns, with timeouts and end-of-stream as first-class
outcomes. Scripts are YAML dialogs of send/expect steps.`,
		Example: `  # Run a login dialog against an ssh client
  $ expect run login.yaml -- ssh user@host

  # Use the spawn command declared in the script itself
  $ expect run smoke.yaml

  # Record a plain-text transcript and expose prometheus metrics
  $ expect run deploy.yaml --transcript deploy.log --strip-ansi --metrics-addr :9090`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

// ExitError carries the child process's exit code to main.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command exited with status %d", e.Code)
}

// bindFlags wires a flag set into viper so values resolve in the order:
// flag, EXPECT_* environment variable, flag default.
func bindFlags(fs *pflag.FlagSet, v *viper.Viper) error {
	v.SetEnvPrefix("EXPECT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v.BindPFlags(fs)
}
