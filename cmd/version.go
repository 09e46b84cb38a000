package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.rossh.dev/rossh/internal/core"
	"go.rossh.dev/rossh/internal/ctlframe"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the client version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := core.InitializeConfig(cmd); err != nil {
				return err
			}
			fmt.Printf("rossh %s (control-frame version %d)\n", core.FormatVersion(core.Version), ctlframe.VersionIndex)
			return nil
		},
	}
}
