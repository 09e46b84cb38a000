package ptyutil

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/creack/pty"
	"go.rossh.dev/rossh/internal/ctlframe"
	"golang.org/x/sys/unix"
)

// ResizeMode selects how window-size changes reach the far end of a relay.
type ResizeMode int

const (
	// Direct applies SIGWINCH-triggered size changes straight to a local
	// pty master via an ioctl. Used by the client controller, which owns
	// the pty that ssh itself is attached to.
	Direct ResizeMode = iota
	// Indirect encodes size changes as a WS control frame written into the
	// relay stream for the other end to apply. Used by the connection
	// endpoint, which does not own the daemon's pty directly.
	Indirect
)

// ForwardWindowResize installs a SIGWINCH handler for the lifetime of the
// returned stop function. In Direct mode it copies stdin's window size onto
// target on every SIGWINCH (and once immediately). In Indirect mode it
// writes a WS control frame built from stdin's size to send instead.
func ForwardWindowResize(mode ResizeMode, target *os.File, send func([]byte) error) (stop func(), err error) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, unix.SIGWINCH)

	apply := func() error {
		size, err := pty.GetsizeFull(os.Stdin)
		if err != nil {
			return fmt.Errorf("ptyutil: get window size: %w", err)
		}
		switch mode {
		case Direct:
			return pty.Setsize(target, size)
		case Indirect:
			payload := []byte(fmt.Sprintf("%d %d %d %d", size.Rows, size.Cols, size.X, size.Y))
			return send(ctlframe.Build(ctlframe.OpWindowSize, payload))
		default:
			return fmt.Errorf("ptyutil: unknown resize mode %d", mode)
		}
	}

	if err := apply(); err != nil {
		signal.Stop(ch)
		return func() {}, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ch:
				_ = apply()
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(ch)
		close(done)
	}, nil
}

// ApplyWindowSizeFrame parses a WS control frame payload (as produced by
// ForwardWindowResize in Indirect mode) and applies it to target's pty.
func ApplyWindowSizeFrame(target *os.File, payload []byte) error {
	var rows, cols, x, y uint16
	if _, err := fmt.Sscanf(string(payload), "%d %d %d %d", &rows, &cols, &x, &y); err != nil {
		return fmt.Errorf("ptyutil: parse WS frame %q: %w", payload, err)
	}
	return pty.Setsize(target, &pty.Winsize{Rows: rows, Cols: cols, X: x, Y: y})
}
