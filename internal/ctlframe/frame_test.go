package ctlframe

import (
	"bytes"
	"testing"
)

func TestBuildParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		op      Opcode
		payload []byte
	}{
		{"no payload", OpConnStart, nil},
		{"with payload", OpFlagServerOld, []byte("4")},
		{"window size", OpWindowSize, []byte("80 24 0 0")},
		{"killed with colon in opcode", Opcode("KILLed:abc123"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire := Build(tt.op, tt.payload)
			if !bytes.HasPrefix(wire, Prefix) {
				t.Fatalf("frame %q missing begin/magic prefix", wire)
			}
			if !bytes.HasSuffix(wire, []byte(End)) {
				t.Fatalf("frame %q missing end marker", wire)
			}

			got, err := Parse(wire)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", wire, err)
			}
			if got.Op != tt.op {
				t.Errorf("Op = %q, want %q", got.Op, tt.op)
			}
			if !bytes.Equal(got.Payload, tt.payload) {
				t.Errorf("Payload = %q, want %q", got.Payload, tt.payload)
			}
		})
	}
}

func TestParseMalformed(t *testing.T) {
	if _, err := Parse([]byte("not a frame")); err == nil {
		t.Fatal("expected error for malformed frame")
	}
}

func TestParsePayloadContainingBeginButNotEnd(t *testing.T) {
	// A payload may contain the Begin marker, or partial End fragments,
	// as long as it never contains the full End sequence.
	wire := Build(OpConnStart, []byte("BC partial EC"))
	got, err := Parse(wire)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if string(got.Payload) != "BC partial EC" {
		t.Errorf("Payload = %q, want %q", got.Payload, "BC partial EC")
	}
}

func TestGenTermIDUniqueAndShaped(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := GenTermID()
		if err != nil {
			t.Fatalf("GenTermID: %v", err)
		}
		if len(id) != 16 {
			t.Fatalf("GenTermID length = %d, want 16", len(id))
		}
		if seen[id] {
			t.Fatalf("GenTermID produced duplicate %q", id)
		}
		seen[id] = true
	}
}
