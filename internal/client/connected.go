package client

import (
	"fmt"
	"io"
	"os"

	"go.rossh.dev/rossh/internal/ctlframe"
	"go.rossh.dev/rossh/internal/ptyutil"
)

// runConnected relays bytes between the ssh master and the controlling
// terminal for as long as the remote session lasts. It watches for CONN:E
// to recognize a graceful shell exit and returns outcomeClean in that case;
// any other master EOF or I/O error is treated as a dropped link.
func (s *Session) runConnected(master *os.File, bh *bootstrap) (outcome, error) {
	stop, err := ptyutil.ForwardWindowResize(ptyutil.Direct, master, nil)
	if err == nil {
		defer stop()
	}

	userInputDone := make(chan error, 1)
	go func() {
		_, err := io.Copy(master, os.Stdin)
		userInputDone <- err
	}()

	buf := make([]byte, 32*1024)
	for {
		n, rerr := master.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			before, after, ok := bh.finder.Feed(chunk)
			os.Stdout.Write(before)
			if ok {
				frame, ferr := bh.consumeFrame(after)
				if ferr == nil && frame.Op == ctlframe.OpConnEnd {
					return outcomeClean, s.releaseOrphan()
				}
				if ferr == nil {
					// Not CONN:E; nothing else is expected mid-session,
					// print it verbatim rather than dropping bytes.
					os.Stdout.Write(ctlframe.Build(frame.Op, frame.Payload))
				} else {
					os.Stdout.Write(after)
				}
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return outcomeDisconnected, fmt.Errorf("ssh link dropped")
			}
			return outcomeDisconnected, fmt.Errorf("client: read from ssh: %w", rerr)
		}
	}
}
