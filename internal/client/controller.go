package client

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/creack/pty"
	"go.rossh.dev/rossh/internal/ctlframe"
	"go.rossh.dev/rossh/internal/history"
	"go.rossh.dev/rossh/internal/ptyutil"
	"go.rossh.dev/rossh/internal/registry"
)

// Config holds everything a single controller invocation needs to know:
// how to reach the remote host, and where local bookkeeping lives.
type Config struct {
	SSHPath    string   // path to the external ssh binary
	SSHArgs    []string // the user's own ssh-style arguments (host, options)
	Host       string   // destination, for local history bookkeeping only
	ProgramDir string   // local dir holding orphan markers, e.g. ~/.config/rossh
	SelfPath   string   // this binary's own path, shipped on install
	RemotePath string   // where the agent binary lands on the remote host
	Term       string   // inherited TERM
	History    *history.DB // local session-history log; nil disables recording
	AutoReconnect func() bool // polled between disconnect and retry; nil means never

	// RemoteShell, DisableAgentFwd and SkipInstall mirror a host profile's
	// fields (internal/hostprofile); the zero values mean "no override".
	RemoteShell     string
	DisableAgentFwd bool
	SkipInstall     bool
}

// Session drives one durable remote shell across any number of connection
// attempts, all sharing the same terminal ID.
type Session struct {
	cfg    Config
	termID string

	orphan        *registry.OrphanMarker
	sessionCreated bool
}

// New creates a controller session with a freshly generated terminal ID.
func New(cfg Config) (*Session, error) {
	termID, err := ctlframe.GenTermID()
	if err != nil {
		return nil, err
	}
	return &Session{cfg: cfg, termID: termID}, nil
}

// TermID returns the session's durable terminal identifier.
func (s *Session) TermID() string { return s.termID }

// Run drives the session through attempts until the user gives up or the
// remote shell exits cleanly.
func (s *Session) Run() error {
	killIDs, err := s.collectReapableOrphans()
	if err != nil {
		slog.Warn("failed to scan orphan markers", "error", err)
	}

	for {
		outcome, err := s.attempt(killIDs)
		killIDs = nil // only sent on the first attempt of a process lifetime

		switch outcome {
		case outcomeClean:
			return nil
		case outcomeFatal:
			return err
		case outcomeDisconnected:
			if err != nil {
				slog.Warn("connection lost", "error", err)
			}
			if s.cfg.AutoReconnect != nil && s.cfg.AutoReconnect() {
				continue
			}
			if !promptRetry() {
				if s.sessionCreated {
					fmt.Fprintf(os.Stderr, "rossh: giving up; session %s left running, will be reaped on next login\n", s.termID)
					if s.cfg.History != nil {
						_ = s.cfg.History.RecordOrphaned(s.termID)
					}
				}
				return err
			}
		}
	}
}

type outcome int

const (
	outcomeClean outcome = iota
	outcomeFatal
	outcomeDisconnected
)

// attempt performs exactly one DIALING→...→CONNECTED/DISCONNECTED cycle.
func (s *Session) attempt(killIDs []string) (outcome, error) {
	master, cmd, err := s.dial()
	if err != nil {
		return outcomeDisconnected, err
	}
	defer master.Close()
	defer cmd.Wait()

	restoreRaw, err := ptyutil.RawMode(int(os.Stdin.Fd()))
	if err == nil {
		defer restoreRaw()
	}

	bh := newBootstrap(master, s.cfg.Term, s.termID, s.cfg.SelfPath, s.cfg.RemotePath, killIDs,
		s.cfg.RemoteShell, s.cfg.DisableAgentFwd, s.cfg.SkipInstall)
	result, err := bh.run()
	s.forgetAckedOrphans(bh.acked)
	if err != nil {
		return outcomeDisconnected, err
	}

	switch result.kind {
	case bootstrapFatalNoInterpreter:
		fmt.Fprintln(os.Stderr, "rossh: remote host has no compatible interpreter/ABI for the agent binary")
		return outcomeFatal, fmt.Errorf("no interpreter on remote host")
	case bootstrapFatalClientTooOld:
		fmt.Fprintln(os.Stderr, "rossh: this client is older than the remote agent; upgrade rossh")
		return outcomeFatal, fmt.Errorf("client protocol version too old")
	case bootstrapFatalInstallDisabled:
		fmt.Fprintln(os.Stderr, "rossh: remote agent missing or outdated, and this host profile disables auto-install (skip_install)")
		return outcomeFatal, fmt.Errorf("remote agent install disabled by host profile")
	case bootstrapConnected:
		if !s.sessionCreated {
			if err := s.markOrphan(); err != nil {
				slog.Warn("failed to create orphan marker", "error", err)
			}
			s.sessionCreated = true
			if s.cfg.History != nil {
				_ = s.cfg.History.RecordCreated(s.termID, s.cfg.Host)
			}
		}
		if s.cfg.History != nil {
			_ = s.cfg.History.RecordAttached(s.termID)
		}
		return s.runConnected(master, bh)
	default:
		return outcomeDisconnected, fmt.Errorf("unexpected bootstrap outcome")
	}
}

func (s *Session) dial() (*os.File, *exec.Cmd, error) {
	args := append([]string{"-t"}, s.cfg.SSHArgs...)
	args = append(args, remoteShellCommand(s.termID))

	cmd := exec.Command(s.cfg.SSHPath, args...)
	cmd.Args[0] = "ssh"
	cmd.Env = os.Environ()

	master, err := pty.Start(cmd)
	if err != nil {
		return nil, nil, fmt.Errorf("client: spawn ssh: %w", err)
	}
	return master, cmd, nil
}

// remoteShellCommand coerces the remote login into a minimal interactive
// shell whose prompt is a well-formed, empty-payload PROMPT control frame,
// so the bootstrap handshake can recognize it without depending on any
// user-configured PS1.
func remoteShellCommand(termID string) string {
	prompt := string(ctlframe.BuildPrompt())
	return fmt.Sprintf(`exec /bin/sh -i -c 'PS1=%q exec /bin/sh -i'`, prompt)
}
