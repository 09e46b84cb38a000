package history

import (
	"path/filepath"
	"testing"
)

func TestRecordAndListRoundTrip(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if err := db.RecordCreated("term1", "example.com"); err != nil {
		t.Fatalf("RecordCreated: %v", err)
	}
	if err := db.RecordAttached("term1"); err != nil {
		t.Fatalf("RecordAttached: %v", err)
	}

	sessions, err := db.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("List returned %d sessions, want 1", len(sessions))
	}
	if sessions[0].TermID != "term1" || sessions[0].Host != "example.com" {
		t.Errorf("unexpected session: %+v", sessions[0])
	}
	if sessions[0].Orphaned {
		t.Error("session should not be orphaned after RecordAttached")
	}
}

func TestRecordOrphanedAndReaped(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if err := db.RecordCreated("term2", "example.com"); err != nil {
		t.Fatalf("RecordCreated: %v", err)
	}
	if err := db.RecordOrphaned("term2"); err != nil {
		t.Fatalf("RecordOrphaned: %v", err)
	}

	sessions, err := db.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(sessions) != 1 || !sessions[0].Orphaned {
		t.Fatalf("expected one orphaned session, got %+v", sessions)
	}

	if err := db.RecordReaped("term2"); err != nil {
		t.Fatalf("RecordReaped: %v", err)
	}
	sessions, err = db.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no sessions after reap, got %+v", sessions)
	}
}
