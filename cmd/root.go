package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.rossh.dev/rossh/internal/client"
	"go.rossh.dev/rossh/internal/core"
	"go.rossh.dev/rossh/internal/history"
	"go.rossh.dev/rossh/internal/hostprofile"
	"go.rossh.dev/rossh/internal/install"
)

// NewRootCommand builds the client controller's cobra tree. The root command
// disables flag parsing: its own arguments are the user's ssh-style
// arguments (destination, -p, -i, whatever ssh itself accepts) and must
// pass through untouched rather than be consumed as rossh flags. rossh's
// own subcommands (version, sessions) still get normal cobra treatment
// since cobra resolves them by name before flag parsing ever starts.
func NewRootCommand() *cobra.Command {
	homeDir, _ := os.UserHomeDir()

	rootCmd := &cobra.Command{
		Use:                "rossh [ssh-args...] destination",
		Short:              "Resilient remote interactive shell",
		Long:               `rossh wraps ssh with a durable remote session that survives dropped links.`,
		DisableFlagParsing: true,
		Args:               cobra.MinimumNArgs(1),
		RunE:               runClient,
	}
	rootCmd.PersistentFlags().String(
		"config-path", filepath.Join(homeDir, core.BaseDirName), "config path",
	)
	rootCmd.PersistentFlags().CountP("verbose", "v", "more output, repeat for even more")

	rootCmd.AddCommand(
		NewVersionCommand(),
		NewSessionsCommand(),
	)

	return rootCmd
}

// runClient is the root command's own action: everything that isn't one of
// rossh's named subcommands is treated as an ssh argument list.
func runClient(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.PersistentFlags().GetString("config-path")
	if _, err := core.InitializeConfig(cmd); err != nil {
		return err
	}
	core.InitLogging(os.Stderr, core.Config.GetInt("verbose"))

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("rossh: locate self: %w", err)
	}

	db, err := history.Open(core.GetHistoryPath())
	if err != nil {
		slog.Warn("failed to open local session history", "error", err)
	} else {
		defer db.Close()
	}

	host := args[len(args)-1]
	var profile hostprofile.Profile
	if hosts, err := hostprofile.Load(core.GetHostsPath()); err != nil {
		slog.Warn("failed to load host profiles", "error", err)
	} else if p, ok := hosts.Lookup(host); ok {
		profile = p
	}

	sess, err := client.New(client.Config{
		SSHPath:    core.GetSSHPath(),
		SSHArgs:    args,
		Host:       host,
		ProgramDir: configPath,
		SelfPath:   self,
		RemotePath: install.RemotePath,
		Term:       os.Getenv("TERM"),
		History:    db,
		AutoReconnect: func() bool {
			return core.GetReconnectEnabled()
		},
		RemoteShell:     profile.RemoteShell,
		DisableAgentFwd: profile.DisableAgentFwd,
		SkipInstall:     profile.SkipInstall,
	})
	if err != nil {
		return err
	}

	return sess.Run()
}
