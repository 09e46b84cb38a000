package agentd

import (
	"bytes"
	"testing"

	"go.rossh.dev/rossh/internal/ctlframe"
)

func wsHeaderForTest() []byte {
	header := append([]byte{}, ctlframe.Prefix...)
	return append(header, []byte(string(ctlframe.OpWindowSize)+ctlframe.End)...)
}

func TestWSInterceptorStripsWSFrame(t *testing.T) {
	var out bytes.Buffer
	var applied []byte

	wi := newWSInterceptor(wsHeaderForTest())
	frame := ctlframe.Build(ctlframe.OpWindowSize, []byte("24 80 0 0"))
	chunk := append([]byte("hello"), frame...)
	chunk = append(chunk, []byte("world")...)

	applyResize := func(payload []byte) error {
		applied = append([]byte(nil), payload...)
		return nil
	}

	if err := wi.feed(&out, chunk, applyResize); err != nil {
		t.Fatalf("feed: %v", err)
	}

	// Whatever wasn't flushed yet is withheld only because it could still
	// be the prefix of a future pattern; appending it reconstructs the
	// full passthrough text with the frame removed.
	got := out.String() + string(wi.finder.Pending())
	if got != "helloworld" {
		t.Errorf("got %q, want %q", got, "helloworld")
	}
	if string(applied) != "24 80 0 0" {
		t.Errorf("applied payload = %q, want %q", applied, "24 80 0 0")
	}
}

func TestWSInterceptorPassthroughPlainText(t *testing.T) {
	var out bytes.Buffer
	wi := newWSInterceptor(wsHeaderForTest())

	applyResize := func(payload []byte) error {
		t.Fatalf("unexpected resize apply with payload %q", payload)
		return nil
	}

	text := "just typing normally"
	if err := wi.feed(&out, []byte(text), applyResize); err != nil {
		t.Fatalf("feed: %v", err)
	}
	if got := out.String() + string(wi.finder.Pending()); got != text {
		t.Errorf("got %q, want %q", got, text)
	}
}

// TestWSInterceptorSplitAcrossReads feeds a single WS frame one byte at a
// time, simulating the pty-sized reads from the input pipe landing on
// arbitrary boundaries. The interceptor must still recognize the frame and
// never leak a fragment of its payload into the shell's input.
func TestWSInterceptorSplitAcrossReads(t *testing.T) {
	var out bytes.Buffer
	var applied []byte

	wi := newWSInterceptor(wsHeaderForTest())
	frame := ctlframe.Build(ctlframe.OpWindowSize, []byte("40 120 0 0"))
	chunk := append([]byte("before"), frame...)
	chunk = append(chunk, []byte("after")...)

	applyResize := func(payload []byte) error {
		applied = append([]byte(nil), payload...)
		return nil
	}

	for i := range chunk {
		if err := wi.feed(&out, chunk[i:i+1], applyResize); err != nil {
			t.Fatalf("feed byte %d: %v", i, err)
		}
	}

	got := out.String() + string(wi.finder.Pending())
	if got != "beforeafter" {
		t.Errorf("got %q, want %q", got, "beforeafter")
	}
	if string(applied) != "40 120 0 0" {
		t.Errorf("applied payload = %q, want %q", applied, "40 120 0 0")
	}
}
