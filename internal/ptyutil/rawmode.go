// Package ptyutil holds the terminal-mode and window-resize helpers shared
// by the client controller, session daemon and connection endpoint.
package ptyutil

import (
	"os"

	"golang.org/x/term"
)

// RawMode puts fd (normally os.Stdin's fd) into raw mode and returns a
// restore function that must be called to put it back, typically deferred
// immediately at the call site. It scopes the raw-mode window to the
// lifetime of a single relay loop rather than the whole process, so a
// reconnect attempt or an early error path never leaves the controlling
// terminal stuck in raw mode.
func RawMode(fd int) (restore func(), err error) {
	prev, err := term.MakeRaw(fd)
	if err != nil {
		return func() {}, err
	}
	return func() {
		_ = term.Restore(fd, prev)
	}, nil
}

// IsTerminal reports whether f refers to a terminal device.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
