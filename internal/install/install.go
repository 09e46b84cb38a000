// Package install implements the bootstrap sequence that ships a copy of
// the client's own binary to the remote host so it can run as the
// connection endpoint and session daemon there.
package install

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
)

// chunkSize bounds each shipped line to keep individual writes well under
// typical shell and terminal line-length limits.
const chunkSize = 1023

// RemotePath is where the shipped binary is written on the remote host
// before being made executable and re-invoked.
const RemotePath = "~/.rossh-agent"

// Lines returns the shell commands that reconstruct the local binary at
// localBinaryPath on the remote host as remotePath: one removal line, one
// base64-chunked append line per chunk, then a decode-and-chmod step. Each
// returned line has no trailing newline. The caller must send each line to
// the remote shell one at a time and wait for its completion (the next
// PROMPT) before sending the next, the same way the rest of the bootstrap
// handshake confirms command completion — a single combined write would
// race the fabricated PS1, which re-echoes a PROMPT frame after every line,
// not just the last.
func Lines(localBinaryPath, remotePath string) ([]string, error) {
	f, err := os.Open(localBinaryPath)
	if err != nil {
		return nil, fmt.Errorf("install: open local binary: %w", err)
	}
	defer f.Close()

	tmpPath := remotePath + ".b64"
	lines := []string{fmt.Sprintf("rm -f %s %s", tmpPath, remotePath)}

	buf := make([]byte, chunkSize/4*3) // keeps each encoded line <= chunkSize
	enc := base64.StdEncoding
	for {
		n, rerr := io.ReadFull(f, buf)
		if n > 0 {
			line := enc.EncodeToString(buf[:n])
			lines = append(lines, fmt.Sprintf("echo %s >> %s", line, tmpPath))
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			return nil, fmt.Errorf("install: read local binary: %w", rerr)
		}
	}

	lines = append(lines, fmt.Sprintf("base64 -d %s > %s && chmod +x %s && rm -f %s", tmpPath, remotePath, remotePath, tmpPath))
	return lines, nil
}

// WriteScript writes the same commands as Lines, one per line, to w. It
// exists for callers (and tests) that want the whole script as a single
// blob rather than paced line-by-line sends; the bootstrap handshake itself
// uses Lines directly so it can wait for a PROMPT between lines.
func WriteScript(w io.Writer, localBinaryPath, remotePath string) error {
	lines, err := Lines(localBinaryPath, remotePath)
	if err != nil {
		return err
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return fmt.Errorf("install: write script line: %w", err)
		}
	}
	return nil
}
