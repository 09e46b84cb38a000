// Package ctlframe implements the in-band control frame wire format shared by
// the client controller, the session daemon and the connection endpoint. A
// control frame is a short, self-delimited sequence that can be embedded
// anywhere inside an otherwise-opaque PTY byte stream and recovered even if
// the reader only sees it split across two reads.
package ctlframe

import (
	"bytes"
	"crypto/rand"
	"fmt"
)

// Wire delimiters. Mirrors the begin/end markers and version index used by
// both ends of the connection; changing these breaks wire compatibility with
// any remote agent built from an older revision.
const (
	Begin = "BC"
	// Magic is a fixed, random-looking tag inserted between Begin and the
	// opcode purely to reduce false positives against arbitrary terminal
	// content; it carries no meaning of its own.
	Magic = "rossh_173e6793-122c"
	End   = "ECrossh"

	// VersionIndex is bumped whenever the frame format or opcode set changes
	// in a way that requires the two ends to match exactly.
	VersionIndex = 4
)

// Opcode identifies the purpose of a control frame payload.
type Opcode string

const (
	OpSSHOK          Opcode = "SSHOK"
	OpConnStart      Opcode = "CONN:S"
	OpConnEnd        Opcode = "CONN:E"
	OpFlagServerOld  Opcode = "CONN:FL:VER:SERVER_UPDATE"
	OpFlagClientOld  Opcode = "CONN:FL:VER:CLIENT_TOOOLD"
	OpKilled         Opcode = "KILLed"
	OpWindowSize     Opcode = "WS"
	OpPrompt         Opcode = "PROMPT"
)

// Prefix is the fixed portion common to every frame, used by a Finder to
// locate candidate frame starts before the opcode is known.
var Prefix = []byte(Begin + Magic)

// Frame is a decoded control frame: an opcode plus its raw payload.
type Frame struct {
	Op      Opcode
	Payload []byte
}

// Build renders a frame as wire bytes:
// BC<magic><opcode>ECrossh<payload>ECrossh.
func Build(op Opcode, payload []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(Begin)
	buf.WriteString(Magic)
	buf.WriteString(string(op))
	buf.WriteString(End)
	buf.Write(payload)
	buf.WriteString(End)
	return buf.Bytes()
}

// BuildPrompt builds a well-formed, empty-payload PROMPT frame. The client
// controller writes this to the remote shell to fabricate a prompt it can
// recognize without depending on the user's actual PS1.
func BuildPrompt() []byte {
	return Build(OpPrompt, nil)
}

// BuildKilled builds a KILLed:<term_id> frame acknowledging a reaped orphan.
func BuildKilled(termID string) []byte {
	return Build(Opcode(fmt.Sprintf("%s:%s", OpKilled, termID)), nil)
}

// Parse extracts the opcode and payload from a single complete frame (the
// bytes between and including the two Begin/End delimiters, as previously
// located by a Finder). It returns an error if the frame is malformed.
func Parse(frame []byte) (Frame, error) {
	if !bytes.HasPrefix(frame, Prefix) {
		return Frame{}, fmt.Errorf("ctlframe: malformed frame %q", frame)
	}
	rest := frame[len(Prefix):]
	endIdx := bytes.Index(rest, []byte(End))
	if endIdx < 0 {
		return Frame{}, fmt.Errorf("ctlframe: missing opcode terminator in %q", frame)
	}
	op := Opcode(rest[:endIdx])
	rest = rest[endIdx+len(End):]
	if !bytes.HasSuffix(rest, []byte(End)) {
		return Frame{}, fmt.Errorf("ctlframe: missing payload terminator in %q", frame)
	}
	payload := rest[:len(rest)-len(End)]
	if len(payload) == 0 {
		payload = nil
	}
	return Frame{Op: op, Payload: payload}, nil
}

// GenTermID generates a random 16-character alphanumeric session
// identifier, used both as the daemon directory suffix and the pty handle
// the client and remote agent agree on during bootstrap.
func GenTermID() (string, error) {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	out := make([]byte, 16)
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("ctlframe: generate term id: %w", err)
	}
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out), nil
}
