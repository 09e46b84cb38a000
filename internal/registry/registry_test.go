package registry

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSessionEnsureCreatedIsRaceArbiter(t *testing.T) {
	base := t.TempDir()
	s := New(base, "abc123")

	created1, err := s.EnsureCreated()
	if err != nil {
		t.Fatalf("first EnsureCreated: %v", err)
	}
	if !created1 {
		t.Fatal("first EnsureCreated should report created")
	}

	created2, err := s.EnsureCreated()
	if err != nil {
		t.Fatalf("second EnsureCreated: %v", err)
	}
	if created2 {
		t.Fatal("second EnsureCreated should report not created")
	}
}

func TestSessionMakePipes(t *testing.T) {
	base := t.TempDir()
	s := New(base, "pipeid")
	if _, err := s.EnsureCreated(); err != nil {
		t.Fatalf("EnsureCreated: %v", err)
	}
	if err := s.MakePipes(); err != nil {
		t.Fatalf("MakePipes: %v", err)
	}
	for _, p := range []string{s.InputPipePath(), s.OutputPipePath()} {
		info, err := os.Stat(p)
		if err != nil {
			t.Fatalf("stat %s: %v", p, err)
		}
		if info.Mode()&os.ModeNamedPipe == 0 {
			t.Errorf("%s is not a named pipe", p)
		}
	}
}

func TestPIDFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.pid")
	if err := WritePID(path, 4242); err != nil {
		t.Fatalf("WritePID: %v", err)
	}
	got, err := ReadPID(path)
	if err != nil {
		t.Fatalf("ReadPID: %v", err)
	}
	if got != 4242 {
		t.Errorf("ReadPID = %d, want 4242", got)
	}
}

func TestReadPIDMissingFileIsZero(t *testing.T) {
	got, err := ReadPID(filepath.Join(t.TempDir(), "missing.pid"))
	if err != nil {
		t.Fatalf("ReadPID: %v", err)
	}
	if got != 0 {
		t.Errorf("ReadPID = %d, want 0 for missing file", got)
	}
}

func TestOrphanMarkerAcquireReleaseAndAbandoned(t *testing.T) {
	base := t.TempDir()

	m, err := Acquire(base, "termid1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	abandoned, err := IsAbandoned(OrphanMarkerPath(base, "termid1"))
	if err != nil {
		t.Fatalf("IsAbandoned: %v", err)
	}
	if abandoned {
		t.Error("marker should not be abandoned while held")
	}

	if _, err := Acquire(base, "termid1"); err == nil {
		t.Error("expected second Acquire on the same term id to fail")
	}

	if err := m.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(OrphanMarkerPath(base, "termid1")); !os.IsNotExist(err) {
		t.Error("marker file should be removed after Release")
	}
}

func TestListOrphanMarkers(t *testing.T) {
	base := t.TempDir()
	m1, err := Acquire(base, "one")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer m1.Release()
	m2, err := Acquire(base, "two")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer m2.Release()

	ids, err := ListOrphanMarkers(base)
	if err != nil {
		t.Fatalf("ListOrphanMarkers: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("ListOrphanMarkers returned %d ids, want 2", len(ids))
	}
}
