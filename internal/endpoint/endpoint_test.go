package endpoint

import (
	"bytes"
	"io"
	"os"
	"testing"

	"go.rossh.dev/rossh/internal/ctlframe"
	"go.rossh.dev/rossh/internal/registry"
)

func TestPreemptPriorEndpointNoPriorPID(t *testing.T) {
	base := t.TempDir()
	sess := registry.New(base, "termid")
	if _, err := sess.EnsureCreated(); err != nil {
		t.Fatalf("EnsureCreated: %v", err)
	}
	if err := preemptPriorEndpoint(sess); err != nil {
		t.Fatalf("preemptPriorEndpoint with no prior pid: %v", err)
	}
}

func TestPreemptPriorEndpointDeadPID(t *testing.T) {
	base := t.TempDir()
	sess := registry.New(base, "termid")
	if _, err := sess.EnsureCreated(); err != nil {
		t.Fatalf("EnsureCreated: %v", err)
	}
	// A pid that is extremely unlikely to be alive.
	if err := registry.WritePID(sess.ConnPIDPath(), 1<<30); err != nil {
		t.Fatalf("WritePID: %v", err)
	}
	if err := preemptPriorEndpoint(sess); err != nil {
		t.Fatalf("preemptPriorEndpoint with dead pid: %v", err)
	}
}

func TestReapKillListRemovesNamedSession(t *testing.T) {
	base := t.TempDir()
	sess := registry.New(base, "abandoned")
	if _, err := sess.EnsureCreated(); err != nil {
		t.Fatalf("EnsureCreated: %v", err)
	}

	reapKillList(base, []string{"abandoned", "never-existed"})

	if _, err := os.Stat(sess.Dir); !os.IsNotExist(err) {
		t.Error("expected named session directory to be removed")
	}
}

func TestReapKillListIgnoresMissingSessions(t *testing.T) {
	base := t.TempDir()
	// Must not panic or error when the session directory never existed.
	reapKillList(base, []string{"never-existed"})
}

// captureStdout redirects os.Stdout for the duration of fn and returns
// everything written to it, restoring the original afterward.
func captureStdout(t *testing.T, fn func()) []byte {
	t.Helper()
	orig := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	os.Stdout = w
	fn()
	w.Close()
	os.Stdout = orig

	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read captured stdout: %v", err)
	}
	return out
}

func TestRunEmitsClientTooOldFrameWhenServerIsNewer(t *testing.T) {
	base := t.TempDir()
	out := captureStdout(t, func() {
		err := Run(Options{Base: base, TermID: "t1", ClientVer: ctlframe.VersionIndex - 1})
		if err == nil {
			t.Error("expected a version mismatch error")
		}
	})
	if !bytes.Contains(out, ctlframe.Build(ctlframe.OpFlagClientOld, nil)) {
		t.Errorf("stdout %q does not contain a CLIENT_TOOOLD frame", out)
	}
}

func TestRunEmitsServerUpdateFrameWhenServerIsOlder(t *testing.T) {
	base := t.TempDir()
	out := captureStdout(t, func() {
		err := Run(Options{Base: base, TermID: "t2", ClientVer: ctlframe.VersionIndex + 1})
		if err == nil {
			t.Error("expected a version mismatch error")
		}
	})
	if !bytes.Contains(out, ctlframe.Build(ctlframe.OpFlagServerOld, nil)) {
		t.Errorf("stdout %q does not contain a SERVER_UPDATE frame", out)
	}
}
