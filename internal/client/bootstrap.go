package client

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"go.rossh.dev/rossh/internal/ctlframe"
	"go.rossh.dev/rossh/internal/install"
)

type bootstrapOutcomeKind int

const (
	bootstrapConnected bootstrapOutcomeKind = iota
	bootstrapFatalNoInterpreter
	bootstrapFatalClientTooOld
	bootstrapFatalInstallDisabled
)

type bootstrapOutcome struct {
	kind bootstrapOutcomeKind
}

// bootstrap drives the WAITING_PROMPT → (install) → LAUNCHING_SERVER
// handshake on a freshly dialed ssh master, up through the point the
// remote agent announces CONN:S or the attempt is declared fatal.
type bootstrap struct {
	master     *os.File
	term       string
	termID     string
	selfPath   string
	remotePath string
	killIDs    []string

	// remoteShell, if set, is propagated to the remote agent as ROSSH_SHELL
	// so the session daemon starts that shell instead of the user's
	// account default. disableAgentFwd strips SSH_AUTH_SOCK from the
	// launch command's environment so the agent never links the forwarded
	// socket into the session directory. Both come from a host profile
	// (internal/hostprofile), never hard-coded.
	remoteShell     string
	disableAgentFwd bool
	skipInstall     bool

	finder *ctlframe.Finder
	acked  []string // term IDs the remote confirmed KILLed
}

func newBootstrap(master *os.File, term, termID, selfPath, remotePath string, killIDs []string, remoteShell string, disableAgentFwd, skipInstall bool) *bootstrap {
	return &bootstrap{
		master:          master,
		term:            term,
		termID:          termID,
		selfPath:        selfPath,
		remotePath:      remotePath,
		killIDs:         killIDs,
		remoteShell:     remoteShell,
		disableAgentFwd: disableAgentFwd,
		skipInstall:     skipInstall,
		finder:          ctlframe.NewFinder(ctlframe.Prefix),
	}
}

// run performs the full handshake, installing the remote agent once if
// needed, and returns once the session is CONNECTED or a fatal condition is
// hit.
func (b *bootstrap) run() (bootstrapOutcome, error) {
	if err := b.waitForPrompt(); err != nil {
		return bootstrapOutcome{}, err
	}

	if err := b.launchServer(); err != nil {
		return bootstrapOutcome{}, err
	}
	return b.classifyLaunch()
}

// waitForPrompt copies the master's output to stdout verbatim (so ssh's own
// host-key/password prompts are visible) until the fabricated PROMPT control
// frame is observed. It only relays in that one direction: nothing read
// from stdin is forwarded to the master during this phase.
func (b *bootstrap) waitForPrompt() error {
	buf := make([]byte, 32*1024)
	for {
		n, err := b.master.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			before, after, ok := b.finder.Feed(chunk)
			os.Stdout.Write(before)
			if ok {
				frame, endErr := b.consumeFrame(after)
				if endErr == nil && frame.Op == ctlframe.OpPrompt {
					return nil
				}
				// Any other frame this early is unexpected; surface it as
				// plain text and keep waiting.
				os.Stdout.Write(after)
			}
		}
		if err != nil {
			if err == io.EOF {
				return fmt.Errorf("client: ssh exited before reaching a shell prompt")
			}
			return fmt.Errorf("client: read from ssh: %w", err)
		}
	}
}

// consumeFrame reads the remainder of a frame (the part after Prefix) from
// the already-buffered bytes plus further master reads if needed.
func (b *bootstrap) consumeFrame(after []byte) (ctlframe.Frame, error) {
	buf := after
	for {
		if idx := bytes.Index(buf, []byte(ctlframe.End)); idx >= 0 {
			if idx2 := bytes.Index(buf[idx+len(ctlframe.End):], []byte(ctlframe.End)); idx2 >= 0 {
				frameBytes := append(append([]byte{}, ctlframe.Prefix...), buf[:idx+len(ctlframe.End)+idx2+len(ctlframe.End)]...)
				return ctlframe.Parse(frameBytes)
			}
		}
		more := make([]byte, 4096)
		n, err := b.master.Read(more)
		if err != nil {
			return ctlframe.Frame{}, err
		}
		buf = append(buf, more[:n]...)
	}
}

// launchServer writes the compound command that invokes the remote agent.
// The agent invocation is wrapped in a subshell joined to "exit" with &&,
// not a bare ";", so the fabricated /bin/sh -i (running as the ssh -t
// command itself) only exits on success: any failure of "agent run" —
// missing binary, version skew, bad interpreter — instead falls through to
// the next PROMPT, which is exactly what classifyLaunch/classifyLaunchNoRetry
// wait for to decide whether to install and retry.
func (b *bootstrap) launchServer() error {
	kill := ""
	for _, id := range b.killIDs {
		kill += " " + id
	}

	inner := ""
	if b.disableAgentFwd {
		inner += "unset SSH_AUTH_SOCK; "
	}
	inner += fmt.Sprintf("TERM=%s", b.term)
	if b.remoteShell != "" {
		inner += fmt.Sprintf(" ROSSH_SHELL=%s", b.remoteShell)
	}
	inner += fmt.Sprintf(" %s agent run -V %d -t %s --kill%s", b.remotePath, ctlframe.VersionIndex, b.termID, kill)

	cmd := fmt.Sprintf("unset HISTFILE PROMPT_COMMAND; (%s) && history -c && exit\n", inner)
	if _, err := b.master.Write([]byte(cmd)); err != nil {
		return fmt.Errorf("client: write launch command: %w", err)
	}
	return nil
}

// classifyLaunch waits for the remote's first control frame (or a repeated
// PROMPT, meaning the launch command itself failed) and decides whether to
// proceed connected, install the agent and retry, or fail fatally.
func (b *bootstrap) classifyLaunch() (bootstrapOutcome, error) {
	var sawBadInterp bytes.Buffer

	buf := make([]byte, 32*1024)
	for {
		n, err := b.master.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			sawBadInterp.Write(chunk)
			if sawBadInterp.Len() > 4096 {
				trimmed := sawBadInterp.Bytes()
				sawBadInterp.Reset()
				sawBadInterp.Write(trimmed[len(trimmed)-2048:])
			}
			if bytes.Contains(sawBadInterp.Bytes(), []byte("/usr/bin/env:")) &&
				bytes.Contains(sawBadInterp.Bytes(), []byte("No such file or directory")) {
				return bootstrapOutcome{kind: bootstrapFatalNoInterpreter}, nil
			}

			before, after, ok := b.finder.Feed(chunk)
			os.Stdout.Write(before)
			if ok {
				frame, ferr := b.consumeFrame(after)
				if ferr != nil {
					continue
				}
				switch {
				case frame.Op == ctlframe.OpConnStart:
					return bootstrapOutcome{kind: bootstrapConnected}, nil
				case frame.Op == ctlframe.OpFlagServerOld:
					return b.installAndRetry()
				case frame.Op == ctlframe.OpFlagClientOld:
					return bootstrapOutcome{kind: bootstrapFatalClientTooOld}, nil
				case frame.Op == ctlframe.OpPrompt:
					// Launch command bounced back to a prompt: the agent
					// binary is missing entirely.
					return b.installAndRetry()
				case bytes.HasPrefix([]byte(frame.Op), []byte(string(ctlframe.OpKilled)+":")):
					id := string(frame.Op)[len(ctlframe.OpKilled)+1:]
					b.acked = append(b.acked, id)
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				return bootstrapOutcome{}, fmt.Errorf("client: ssh exited during launch")
			}
			return bootstrapOutcome{}, fmt.Errorf("client: read from ssh: %w", err)
		}
	}
}

// installAndRetry runs the deterministic install sequence once and makes a
// single second launch attempt, per the at-most-one-retry policy. A host
// profile may disable this entirely (skip_install), in which case a
// missing or outdated remote agent is surfaced as fatal instead. install
// itself paces every line against its own PROMPT, so by the time it
// returns the remote shell is already sitting at a fresh prompt ready for
// launchServer's command — no extra wait here.
func (b *bootstrap) installAndRetry() (bootstrapOutcome, error) {
	if b.skipInstall {
		return bootstrapOutcome{kind: bootstrapFatalInstallDisabled}, nil
	}
	if err := b.install(); err != nil {
		return bootstrapOutcome{}, fmt.Errorf("client: install remote agent: %w", err)
	}
	if err := b.launchServer(); err != nil {
		return bootstrapOutcome{}, err
	}
	outcome, err := b.classifyLaunchNoRetry()
	if err != nil {
		return bootstrapOutcome{}, err
	}
	return outcome, nil
}

// classifyLaunchNoRetry is classifyLaunch's second-attempt variant: a
// bounced prompt here means the install failed and is reported rather than
// looped into a second install.
func (b *bootstrap) classifyLaunchNoRetry() (bootstrapOutcome, error) {
	buf := make([]byte, 32*1024)
	for {
		n, err := b.master.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			before, after, ok := b.finder.Feed(chunk)
			os.Stdout.Write(before)
			if ok {
				frame, ferr := b.consumeFrame(after)
				if ferr != nil {
					continue
				}
				switch frame.Op {
				case ctlframe.OpConnStart:
					return bootstrapOutcome{kind: bootstrapConnected}, nil
				case ctlframe.OpFlagClientOld:
					return bootstrapOutcome{kind: bootstrapFatalClientTooOld}, nil
				case ctlframe.OpPrompt:
					return bootstrapOutcome{}, fmt.Errorf("client: remote agent install failed twice in a row")
				}
			}
		}
		if err != nil {
			return bootstrapOutcome{}, fmt.Errorf("client: read from ssh after install: %w", err)
		}
	}
}

// install runs the deterministic install sequence one line at a time,
// awaiting the next PROMPT after each before sending the next line. The
// remote target is an interactive /bin/sh -i whose PS1 is the fabricated
// PROMPT frame, so it re-emits that frame after every completed line, not
// just the last; sending the whole script as one write and waiting for a
// single PROMPT would match the echo of an arbitrary intermediate line
// instead of the final one.
func (b *bootstrap) install() error {
	lines, err := install.Lines(b.selfPath, b.remotePath)
	if err != nil {
		return err
	}

	all := make([]string, 0, len(lines)+2)
	all = append(all, fmt.Sprintf("mkdir -p %s; chmod go-w %s", "~/.rossh", "~/.rossh"))
	all = append(all, lines...)
	all = append(all, fmt.Sprintf("chmod go-w,+x %s", b.remotePath))

	for _, line := range all {
		if _, err := b.master.Write([]byte(line + "\n")); err != nil {
			return fmt.Errorf("client: write install line: %w", err)
		}
		if err := b.waitForPrompt(); err != nil {
			return fmt.Errorf("client: await prompt after install line: %w", err)
		}
	}
	return nil
}
