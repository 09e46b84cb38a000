// Package endpoint implements the connection endpoint: the short-lived
// remote process spawned once per ssh connection that bridges the ssh
// channel to the long-lived session daemon over named pipes.
package endpoint

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"go.rossh.dev/rossh/internal/agentd"
	"go.rossh.dev/rossh/internal/ctlframe"
	"go.rossh.dev/rossh/internal/ptyutil"
	"go.rossh.dev/rossh/internal/registry"
	"golang.org/x/sys/unix"
)

// Options configures a single endpoint invocation.
type Options struct {
	Base        string // session directory base, e.g. /tmp
	TermID      string
	SelfPath    string // path to this binary, for spawning the daemon
	ClientVer   int
	AuthSockSrc string   // SSH_AUTH_SOCK to symlink in, if agent forwarding is on
	KillIDs     []string // terminal IDs the client believes are orphaned
}

// versionMismatch is returned by Run when the endpoint's own control-frame
// version does not match what the client asked for.
type versionMismatch struct {
	serverNewer bool
}

func (e versionMismatch) Error() string {
	if e.serverNewer {
		return "server control-frame version is newer than client"
	}
	return "server control-frame version is older than client"
}

// Run executes one connection endpoint end to end: version check, session
// creation if needed, pre-emption of any prior endpoint, registration,
// pipe relay, and cleanup on exit.
func Run(opts Options) error {
	if opts.ClientVer != ctlframe.VersionIndex {
		mismatch := versionMismatch{serverNewer: opts.ClientVer < ctlframe.VersionIndex}
		// The client classifies a version-skew failure purely from the
		// control frame on the wire, not from this process's exit code
		// (which it never sees — the agent run invocation is wrapped in a
		// subshell on the remote shell). Emit the matching opcode before
		// returning so bootstrap.classifyLaunch can tell "server needs
		// reinstalling" from "client itself is too old" apart.
		if mismatch.serverNewer {
			_, _ = os.Stdout.Write(ctlframe.Build(ctlframe.OpFlagClientOld, nil))
		} else {
			_, _ = os.Stdout.Write(ctlframe.Build(ctlframe.OpFlagServerOld, nil))
		}
		return mismatch
	}

	reapKillList(opts.Base, opts.KillIDs)

	sess := registry.New(opts.Base, opts.TermID)
	created, err := sess.EnsureCreated()
	if err != nil {
		return err
	}
	if created {
		if err := sess.MakePipes(); err != nil {
			return err
		}
		if err := agentd.Spawn(opts.SelfPath, opts.Base, opts.TermID); err != nil {
			return err
		}
	}

	if opts.AuthSockSrc != "" {
		_ = os.Remove(sess.SockPath())
		if err := os.Symlink(opts.AuthSockSrc, sess.SockPath()); err != nil {
			slog.Warn("failed to link agent forwarding socket", "error", err)
		}
	}

	if err := preemptPriorEndpoint(sess); err != nil {
		return err
	}
	if err := registry.WritePID(sess.ConnPIDPath(), os.Getpid()); err != nil {
		return err
	}

	hup := make(chan os.Signal, 1)
	onHup(hup, sess)

	outPipe, err := os.OpenFile(sess.OutputPipePath(), os.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("endpoint: open output pipe: %w", err)
	}
	defer outPipe.Close()

	inPipe, err := os.OpenFile(sess.InputPipePath(), os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("endpoint: open input pipe: %w", err)
	}
	defer inPipe.Close()

	if _, err := os.Stdout.Write(ctlframe.Build(ctlframe.OpConnStart, nil)); err != nil {
		return fmt.Errorf("endpoint: emit CONN:S: %w", err)
	}

	stop, err := ptyutil.ForwardWindowResize(ptyutil.Indirect, nil, func(frame []byte) error {
		_, err := inPipe.Write(frame)
		return err
	})
	if err != nil {
		slog.Warn("failed to install window-resize forwarding", "error", err)
	} else {
		defer stop()
	}

	outputDone, stdinDone := relay(outPipe, inPipe)
	select {
	case <-outputDone:
		// Output pipe EOF means the daemon (and its shell) is gone: a
		// graceful end of session, not an error.
		_ = sess.Destroy()
		_, _ = os.Stdout.Write(ctlframe.Build(ctlframe.OpConnEnd, nil))
		return nil
	case err := <-stdinDone:
		// Stdin EOF means the ssh channel itself closed out from under
		// us; the daemon is left running for a future endpoint to find.
		if err == nil {
			err = io.EOF
		}
		return fmt.Errorf("endpoint: ssh channel closed: %w", err)
	}
}

func relay(outPipe *os.File, inPipe *os.File) (outputDone, stdinDone chan error) {
	outputDone = make(chan error, 1)
	stdinDone = make(chan error, 1)
	go func() {
		_, err := io.Copy(os.Stdout, outPipe)
		outputDone <- err
	}()
	go func() {
		_, err := io.Copy(inPipe, os.Stdin)
		stdinDone <- err
	}()
	return outputDone, stdinDone
}

func preemptPriorEndpoint(sess *registry.Session) error {
	pid, err := registry.ReadPID(sess.ConnPIDPath())
	if err != nil {
		return err
	}
	if pid != 0 && registry.IsAlive(pid) {
		if err := registry.Signal(pid, unix.SIGINT); err != nil {
			return fmt.Errorf("endpoint: preempt prior endpoint pid %d: %w", pid, err)
		}
	}
	return nil
}

func onHup(ch chan os.Signal, sess *registry.Session) {
	signal.Notify(ch, unix.SIGHUP)
	go func() {
		<-ch
		_ = os.Remove(sess.ConnPIDPath())
		os.Exit(1)
	}()
}

// reapKillList tears down each session the client's local orphan bookkeeping
// named as abandoned: hangup any connection endpoint still attached to it,
// terminate its daemon, remove its directory, and announce the id as
// reaped so the client can forget its local marker. An id with no matching
// session directory is silently skipped; the client's marker is stale but
// harmless.
func reapKillList(base string, ids []string) {
	for _, id := range ids {
		sess := registry.New(base, id)
		if _, err := os.Stat(sess.Dir); err != nil {
			continue
		}

		if pid, _ := registry.ReadPID(sess.ConnPIDPath()); pid != 0 {
			_ = registry.Signal(pid, unix.SIGHUP)
		}
		if pid, _ := registry.ReadPID(sess.SessionPIDPath()); pid != 0 {
			_ = registry.Signal(pid, unix.SIGTERM)
		}
		if err := sess.Destroy(); err != nil {
			slog.Warn("failed to destroy reaped session", "term_id", id, "error", err)
			continue
		}
		if _, err := os.Stdout.Write(ctlframe.BuildKilled(id)); err != nil {
			slog.Warn("failed to emit KILLed frame", "term_id", id, "error", err)
		}
	}
}
