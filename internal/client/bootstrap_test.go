package client

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/creack/pty"
	"go.rossh.dev/rossh/internal/ctlframe"
	"go.rossh.dev/rossh/internal/install"
)

func TestRemoteShellCommandEmbedsParsablePrompt(t *testing.T) {
	cmd := remoteShellCommand("abc123")
	if !strings.Contains(cmd, string(ctlframe.Prefix)) {
		t.Fatalf("remote shell command %q does not embed the control-frame prefix", cmd)
	}
	frame := ctlframe.BuildPrompt()
	if !strings.Contains(cmd, string(frame)) {
		t.Errorf("remote shell command does not contain a well-formed PROMPT frame")
	}
}

func TestConsumeFrameAcrossSeparateReads(t *testing.T) {
	// consumeFrame must be able to assemble a frame whose terminator
	// arrives in a later read than its opening bytes.
	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer pr.Close()

	b := &bootstrap{master: pr, finder: ctlframe.NewFinder(ctlframe.Prefix)}

	// The first read ends partway through the opcode terminator.
	full := ctlframe.Build(ctlframe.OpConnStart, nil)
	split := len(ctlframe.Prefix) + len(ctlframe.OpConnStart) + 3
	_, after, ok := b.finder.Feed(full[:split])
	if !ok {
		t.Fatal("expected Prefix match within the first read")
	}

	// The rest of the frame is only available from a further master read.
	if _, err := pw.Write(full[split:]); err != nil {
		t.Fatalf("write remainder: %v", err)
	}
	pw.Close()

	frame, err := b.consumeFrame(after)
	if err != nil {
		t.Fatalf("consumeFrame: %v", err)
	}
	if frame.Op != ctlframe.OpConnStart {
		t.Errorf("Op = %q, want %q", frame.Op, ctlframe.OpConnStart)
	}
}

func TestLaunchServerAppliesHostProfileOverrides(t *testing.T) {
	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer pr.Close()

	b := &bootstrap{
		master:          pw,
		term:            "xterm-256color",
		termID:          "abc123",
		remotePath:      "~/.rossh-agent",
		remoteShell:     "/bin/zsh",
		disableAgentFwd: true,
	}
	if err := b.launchServer(); err != nil {
		t.Fatalf("launchServer: %v", err)
	}
	pw.Close()

	buf := make([]byte, 4096)
	n, _ := pr.Read(buf)
	cmd := string(buf[:n])

	if !strings.Contains(cmd, "unset SSH_AUTH_SOCK") {
		t.Errorf("launch command does not disable agent forwarding: %q", cmd)
	}
	if !strings.Contains(cmd, "ROSSH_SHELL=/bin/zsh") {
		t.Errorf("launch command does not propagate remote shell override: %q", cmd)
	}
}

// TestInstallAwaitsPromptBetweenLines simulates the remote /bin/sh -i side of
// the install handshake: it reads back one line at a time and only echoes a
// fresh PROMPT frame once that line has been fully received. If install sent
// the whole script in one write and waited for a single PROMPT, the remote
// side here would never see more than one line arrive before it answered,
// and install would hang or desynchronize; pacing correctly means every line
// this goroutine reads is answered before the next one shows up.
func TestInstallAwaitsPromptBetweenLines(t *testing.T) {
	ptmx, tty, err := pty.Open()
	if err != nil {
		t.Fatalf("pty.Open: %v", err)
	}
	defer ptmx.Close()
	defer tty.Close()

	binPath := filepath.Join(t.TempDir(), "fakebinary")
	payload := bytes.Repeat([]byte{0x01, 0x02, 0x03, 0x04}, 600)
	if err := os.WriteFile(binPath, payload, 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	wantLines, err := install.Lines(binPath, "~/.rossh-agent")
	if err != nil {
		t.Fatalf("install.Lines: %v", err)
	}
	wantCount := len(wantLines) + 2 // mkdir bookend + trailing chmod

	var gotCount int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(tty)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			atomic.AddInt32(&gotCount, 1)
			if _, err := tty.Write(ctlframe.BuildPrompt()); err != nil {
				return
			}
		}
	}()

	b := &bootstrap{
		master:     ptmx,
		selfPath:   binPath,
		remotePath: "~/.rossh-agent",
		finder:     ctlframe.NewFinder(ctlframe.Prefix),
	}
	if err := b.install(); err != nil {
		t.Fatalf("install: %v", err)
	}
	tty.Close()
	<-done

	if int(atomic.LoadInt32(&gotCount)) != wantCount {
		t.Errorf("remote side observed %d lines, want %d", gotCount, wantCount)
	}
}
