// Package agentd implements the session daemon: the long-lived remote
// process that owns the login shell behind a pty and survives connection
// endpoints attaching and detaching around it.
package agentd

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"os/user"

	"github.com/creack/pty"
	"go.rossh.dev/rossh/internal/registry"
	"golang.org/x/sys/unix"
)

// Spawn re-execs the current binary as a detached daemon for termID and
// returns as soon as the process has started; it waits neither for the
// daemon to write its pid file nor for it to exit. This is the Go equivalent of the fork-then-pty.fork sequence a
// process without an exec-based re-spawn convention would use: a single
// re-exec under a new session keeps the daemon alive after the endpoint
// that created it exits.
func Spawn(selfPath, base, termID string) error {
	cmd := exec.Command(selfPath, "agent", "daemon", "--term-id", termID, "--base-dir", base)
	cmd.SysProcAttr = &unix.SysProcAttr{Setsid: true}
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("agentd: spawn daemon: %w", err)
	}
	// The daemon is now independent; releasing it lets the endpoint's
	// process tree exit without taking the daemon down with it.
	return cmd.Process.Release()
}

// Run is the daemon's entry point, invoked from within the freshly re-execed
// process started by Spawn. It never returns while the shell is alive.
func Run(base, termID string) error {
	// SIGHUP and SIGINT from a dying terminal or a preempted endpoint must
	// not kill the daemon; only an explicit SIGTERM tears the shell down.
	signal.Ignore(unix.SIGHUP, unix.SIGINT)

	sess := registry.New(base, termID)
	if err := registry.WritePID(sess.SessionPIDPath(), os.Getpid()); err != nil {
		return err
	}

	shellPath := loginShell()
	shellCmd := exec.Command(shellPath, "-l")
	shellCmd.Env = os.Environ()

	master, err := pty.Start(shellCmd)
	if err != nil {
		return fmt.Errorf("agentd: start shell: %w", err)
	}
	defer master.Close()

	term := make(chan os.Signal, 1)
	signal.Notify(term, unix.SIGTERM)
	go func() {
		<-term
		slog.Info("daemon received SIGTERM, propagating SIGHUP to shell", "term_id", termID)
		_ = shellCmd.Process.Signal(unix.SIGHUP)
	}()

	relayErr := copyToDaemon(sess, master)

	_ = shellCmd.Process.Kill()
	_, _ = shellCmd.Process.Wait()
	return relayErr
}

// loginShell picks the shell the daemon execs under its pty. ROSSH_SHELL,
// set by the client's launch command when a host profile names a
// remote_shell override, takes precedence over the account's own $SHELL.
func loginShell() string {
	if shellPath := os.Getenv("ROSSH_SHELL"); shellPath != "" {
		return shellPath
	}
	if shellPath := os.Getenv("SHELL"); shellPath != "" {
		return shellPath
	}
	if u, err := user.Current(); err == nil && u.Username == "root" {
		return "/bin/bash"
	}
	return "/bin/sh"
}
