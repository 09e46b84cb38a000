// Package registry implements the on-disk session registry: the per-session
// directory layout, pid files, named pipes and the locking conventions that
// let independently-started processes agree on whether a session or
// connection is still live.
package registry

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Dir returns the per-session directory for termID, e.g. /tmp/rossh.<id>.
func Dir(base, termID string) string {
	return filepath.Join(base, fmt.Sprintf("rossh.%s", termID))
}

// Session describes the filesystem layout of a single session's directory.
type Session struct {
	Dir string
}

// New returns the Session handle for termID rooted at base.
func New(base, termID string) *Session {
	return &Session{Dir: Dir(base, termID)}
}

func (s *Session) path(name string) string { return filepath.Join(s.Dir, name) }

// SessionPIDPath is the pid file of the daemon that owns the shell.
func (s *Session) SessionPIDPath() string { return s.path("session.pid") }

// ConnPIDPath is the pid file of the currently-attached connection endpoint.
func (s *Session) ConnPIDPath() string { return s.path("connection.pid") }

// SockPath is the ssh-agent forwarding socket symlink for this session.
func (s *Session) SockPath() string { return s.path("auth.sock") }

// InputPipePath is the named pipe the endpoint writes client input into.
func (s *Session) InputPipePath() string { return s.path("input") }

// OutputPipePath is the named pipe the daemon writes shell output into.
func (s *Session) OutputPipePath() string { return s.path("output") }

// EnsureCreated creates the session directory if it does not already exist,
// using the bare mkdir as the race arbiter: exactly one of any number of
// concurrently-starting endpoints will win the mkdir and become responsible
// for spawning the daemon.
func (s *Session) EnsureCreated() (created bool, err error) {
	if err := os.Mkdir(s.Dir, 0o700); err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("registry: create session dir: %w", err)
	}
	return true, nil
}

// MakePipes creates the input and output FIFOs. Safe to call only once,
// immediately after EnsureCreated reports created == true.
func (s *Session) MakePipes() error {
	for _, p := range []string{s.InputPipePath(), s.OutputPipePath()} {
		if err := unix.Mkfifo(p, 0o600); err != nil {
			return fmt.Errorf("registry: mkfifo %s: %w", p, err)
		}
	}
	return nil
}

// Destroy removes the entire session directory tree.
func (s *Session) Destroy() error {
	if err := os.RemoveAll(s.Dir); err != nil {
		return fmt.Errorf("registry: remove session dir: %w", err)
	}
	return nil
}

// ReadPID reads a pid file, returning 0, nil if it does not exist.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("registry: read pid file %s: %w", path, err)
	}
	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return 0, fmt.Errorf("registry: parse pid file %s: %w", path, err)
	}
	return pid, nil
}

// WritePID writes pid to path.
func WritePID(path string, pid int) error {
	if err := os.WriteFile(path, []byte(fmt.Sprintf("%d", pid)), 0o600); err != nil {
		return fmt.Errorf("registry: write pid file %s: %w", path, err)
	}
	return nil
}
