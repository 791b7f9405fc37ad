package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/praxiomlabs/expect/internal/version"
)

func versionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version",
		RunE: func(c *cobra.Command, args []string) error {
			_, err := fmt.Printf("expect version v%s\n", version.String())
			return err
		},
	}

	return cmd
}
