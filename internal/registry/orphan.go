package registry

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// OrphanMarker is a `.orphan.<term_id>` file whose advisory lock is held for
// the lifetime of the client process that created the session. A marker
// that exists but is unlocked means its owning client has exited or died
// without a clean disconnect, and the session behind it is reapable.
type OrphanMarker struct {
	path string
	file *os.File
}

// OrphanMarkerPath returns the marker path for termID under base.
func OrphanMarkerPath(base, termID string) string {
	return filepath.Join(base, fmt.Sprintf(".orphan.%s", termID))
}

// Acquire creates (or opens) the marker file for termID and takes an
// exclusive, non-blocking advisory lock on it, held until Release is
// called. The lock is process-scoped: it is automatically released if the
// process exits or crashes, which is exactly the liveness signal reapers
// rely on.
func Acquire(base, termID string) (*OrphanMarker, error) {
	path := OrphanMarkerPath(base, termID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("registry: open orphan marker: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("registry: lock orphan marker: %w", err)
	}
	return &OrphanMarker{path: path, file: f}, nil
}

// Release closes the marker's file descriptor, dropping its lock, and
// removes the marker file. Call this on a clean session teardown only; an
// abandoned client should simply exit without calling it, leaving the
// marker behind unlocked for the next reaper pass.
func (m *OrphanMarker) Release() error {
	defer m.file.Close()
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("registry: remove orphan marker: %w", err)
	}
	return nil
}

// IsAbandoned reports whether the marker at path exists and is currently
// unlocked, meaning its owning client is gone.
func IsAbandoned(path string) (bool, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("registry: open orphan marker: %w", err)
	}
	defer f.Close()

	err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		// Still locked by a live owner.
		return false, nil
	}
	// We just took the lock ourselves; release it immediately, we were
	// only probing.
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	return true, nil
}

// ListOrphanMarkers returns the term IDs of every orphan marker under base.
func ListOrphanMarkers(base string) ([]string, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("registry: list %s: %w", base, err)
	}
	var ids []string
	for _, e := range entries {
		var id string
		if _, err := fmt.Sscanf(e.Name(), ".orphan.%s", &id); err == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
