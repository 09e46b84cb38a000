package registry

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"
)

// IsAlive reports whether pid refers to a running process. It prefers
// gopsutil's portable process table lookup and falls back to a bare
// signal-0 probe, matching how process liveness is checked elsewhere in
// this codebase's supervision code.
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	if running, err := process.PidExists(int32(pid)); err == nil {
		return running
	}
	return unix.Kill(pid, 0) == nil
}

// Signal sends sig to pid, treating "no such process" as a non-error.
func Signal(pid int, sig unix.Signal) error {
	if err := unix.Kill(pid, sig); err != nil {
		if err == unix.ESRCH {
			return nil
		}
		return fmt.Errorf("registry: signal pid %d: %w", pid, err)
	}
	return nil
}
