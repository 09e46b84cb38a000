package client

import (
	"bufio"
	"fmt"
	"os"

	"go.rossh.dev/rossh/internal/registry"
)

// collectReapableOrphans scans the local program directory for orphan
// markers whose lock can be acquired — meaning the client that created them
// has since died — and returns their term IDs to pass as --kill arguments
// on the next attach.
func (s *Session) collectReapableOrphans() ([]string, error) {
	ids, err := registry.ListOrphanMarkers(s.cfg.ProgramDir)
	if err != nil {
		return nil, err
	}
	var reapable []string
	for _, id := range ids {
		abandoned, err := registry.IsAbandoned(registry.OrphanMarkerPath(s.cfg.ProgramDir, id))
		if err != nil || !abandoned {
			continue
		}
		reapable = append(reapable, id)
	}
	return reapable, nil
}

// markOrphan creates and locks this session's orphan marker. The lock is
// held for the remainder of the process lifetime; release happens only on
// a clean session end.
func (s *Session) markOrphan() error {
	m, err := registry.Acquire(s.cfg.ProgramDir, s.termID)
	if err != nil {
		return err
	}
	s.orphan = m
	return nil
}

// releaseOrphan unlinks this session's orphan marker on a graceful end.
func (s *Session) releaseOrphan() error {
	if s.orphan == nil {
		return nil
	}
	err := s.orphan.Release()
	s.orphan = nil
	if s.cfg.History != nil {
		_ = s.cfg.History.RecordReaped(s.termID)
	}
	return err
}

// forgetAckedOrphans removes local orphan markers the remote confirmed it
// killed, so a future login won't try to reap them again.
func (s *Session) forgetAckedOrphans(ids []string) {
	for _, id := range ids {
		_ = os.Remove(registry.OrphanMarkerPath(s.cfg.ProgramDir, id))
		if s.cfg.History != nil {
			_ = s.cfg.History.RecordReaped(id)
		}
	}
}

// promptRetry asks the user whether to retry a dropped connection.
func promptRetry() bool {
	fmt.Fprint(os.Stderr, "rossh: connection lost. Press Enter to retry, Ctrl-C to give up: ")
	reader := bufio.NewReader(os.Stdin)
	_, err := reader.ReadString('\n')
	return err == nil
}
