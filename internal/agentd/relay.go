package agentd

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"go.rossh.dev/rossh/internal/ctlframe"
	"go.rossh.dev/rossh/internal/ptyutil"
	"go.rossh.dev/rossh/internal/registry"
)

// copyToDaemon relays bytes between the shell's pty master and the named
// pipes an attached endpoint reads and writes. It runs until the master
// itself is closed (the shell exited), which is the only condition that
// ends the daemon's life; an endpoint detaching merely closes its end of
// the pipes, and the input side is reopened and waited on rather than
// treated as a fatal error, so a later endpoint can attach to the same
// still-running shell.
func copyToDaemon(sess *registry.Session, master *os.File) error {
	outPipe, err := os.OpenFile(sess.OutputPipePath(), os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("agentd: open output pipe: %w", err)
	}
	defer outPipe.Close()

	masterDone := make(chan error, 1)
	go func() {
		_, err := io.Copy(outPipe, master)
		masterDone <- err
	}()

	wsHeader := append(append([]byte{}, ctlframe.Prefix...), []byte(string(ctlframe.OpWindowSize)+ctlframe.End)...)
	interceptor := newWSInterceptor(wsHeader)

	for {
		inPipe, err := os.OpenFile(sess.InputPipePath(), os.O_RDONLY, 0)
		if err != nil {
			return fmt.Errorf("agentd: open input pipe: %w", err)
		}

		buf := make([]byte, 32*1024)
		for {
			n, err := inPipe.Read(buf)
			if n > 0 {
				applyResize := func(payload []byte) error { return ptyutil.ApplyWindowSizeFrame(master, payload) }
				if werr := interceptor.feed(master, buf[:n], applyResize); werr != nil {
					inPipe.Close()
					return werr
				}
			}
			if err != nil {
				break
			}
		}
		inPipe.Close()

		select {
		case err := <-masterDone:
			return err
		default:
		}
		// Input pipe hit EOF because its writer (the endpoint) closed its
		// end, not because the shell died. Reopening blocks until the next
		// endpoint attaches and opens the other end for writing.
	}
}

// maxPendingWSPayload bounds how much of an in-progress WS frame's payload
// wsInterceptor will buffer waiting for its closing terminator. A genuine
// "rows cols x y" payload is a handful of bytes; this only guards against a
// malformed or truncated frame pinning memory indefinitely.
const maxPendingWSPayload = 256

// wsInterceptor scans an input-pipe byte stream for WS control frames and
// diverts their payload to a resize callback instead of the shell, while
// passing every other byte through untouched. Unlike a single-shot scan, it
// carries frame state (header matched, payload accumulated so far) across
// separate feed calls, so a WS frame whose payload or closing terminator
// lands in the next pty-buffer-sized read is still recognized correctly
// rather than leaking partial binary payload into the shell's input.
type wsInterceptor struct {
	finder     *ctlframe.Finder
	inFrame    bool
	payloadBuf []byte
}

func newWSInterceptor(header []byte) *wsInterceptor {
	return &wsInterceptor{finder: ctlframe.NewFinder(header)}
}

// feed writes chunk to w, except that any WS control frame found within it
// (possibly spanning several feed calls) is consumed and passed to
// applyResize instead of being echoed into the shell's input stream.
func (wi *wsInterceptor) feed(w io.Writer, chunk []byte, applyResize func([]byte) error) error {
	rest := chunk
	for {
		if wi.inFrame {
			wi.payloadBuf = append(wi.payloadBuf, rest...)
			endIdx := bytes.Index(wi.payloadBuf, []byte(ctlframe.End))
			if endIdx < 0 {
				if len(wi.payloadBuf) > maxPendingWSPayload {
					// Malformed: never got a terminator within a sane
					// bound. Drop the frame rather than buffer forever.
					wi.inFrame = false
					wi.payloadBuf = nil
				}
				return nil
			}
			payload := wi.payloadBuf[:endIdx]
			if err := applyResize(payload); err != nil {
				return err
			}
			rest = wi.payloadBuf[endIdx+len(ctlframe.End):]
			wi.payloadBuf = nil
			wi.inFrame = false
			if len(rest) == 0 {
				return nil
			}
			continue
		}

		before, after, ok := wi.finder.Feed(rest)
		if len(before) > 0 {
			if _, err := w.Write(before); err != nil {
				return fmt.Errorf("agentd: write to shell: %w", err)
			}
		}
		if !ok {
			return nil
		}
		wi.inFrame = true
		rest = after
	}
}
