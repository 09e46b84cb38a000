package cmd

import (
	"flag"
	"fmt"
	"os"

	"go.rossh.dev/rossh/internal/agentd"
	"go.rossh.dev/rossh/internal/core"
	"go.rossh.dev/rossh/internal/endpoint"
)

// remoteBase is the root of every session directory on a remote host.
const remoteBase = "/tmp"

// RunAgent dispatches the hidden "agent" subcommands that only ever run on
// the remote host: "run" is the short-lived connection endpoint invoked
// directly off the secure-shell channel, "daemon" is the long-lived session
// daemon re-exec'd by the endpoint itself. Neither goes through cobra: the
// launch command built in the client's bootstrap is a fixed string this
// binary composes and parses itself, not a user-facing CLI surface.
func RunAgent(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "agent: missing subcommand")
		return 2
	}

	switch args[0] {
	case "run":
		return runAgentRun(args[1:])
	case "daemon":
		return runAgentDaemon(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "agent: unknown subcommand %q\n", args[0])
		return 2
	}
}

func runAgentRun(args []string) int {
	fs := flag.NewFlagSet("agent run", flag.ContinueOnError)
	version := fs.Int("V", 0, "control-frame protocol version")
	termID := fs.String("t", "", "terminal id")
	killFlag := fs.Bool("kill", false, "ids following --kill are orphans to reap")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	var killIDs []string
	if *killFlag {
		killIDs = fs.Args()
	}

	core.InitLogging(os.Stderr, 0)

	self, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "agent run: locate self: %v\n", err)
		return 1
	}

	if err := endpoint.Run(endpoint.Options{
		Base:        remoteBase,
		TermID:      *termID,
		SelfPath:    self,
		ClientVer:   *version,
		AuthSockSrc: os.Getenv("SSH_AUTH_SOCK"),
		KillIDs:     killIDs,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "agent run: %v\n", err)
		return 1
	}
	return 0
}

func runAgentDaemon(args []string) int {
	fs := flag.NewFlagSet("agent daemon", flag.ContinueOnError)
	termID := fs.String("term-id", "", "terminal id")
	baseDir := fs.String("base-dir", remoteBase, "session directory base")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	core.InitLogging(os.Stderr, 0)

	if err := agentd.Run(*baseDir, *termID); err != nil {
		fmt.Fprintf(os.Stderr, "agent daemon: %v\n", err)
		return 1
	}
	return 0
}
