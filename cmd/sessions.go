package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.rossh.dev/rossh/internal/core"
	"go.rossh.dev/rossh/internal/history"
)

func NewSessionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List locally remembered remote sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := core.InitializeConfig(cmd); err != nil {
				return err
			}

			db, err := history.Open(core.GetHistoryPath())
			if err != nil {
				return err
			}
			defer db.Close()

			sessions, err := db.List()
			if err != nil {
				return err
			}

			if len(sessions) == 0 {
				fmt.Println("No known sessions.")
				return nil
			}
			for _, s := range sessions {
				status := "attached"
				if s.Orphaned {
					status = "orphaned"
				}
				fmt.Printf("%-20s %-30s %-10s last attached %s\n",
					s.TermID, s.Host, status, s.LastAttachedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}
