package client

import "testing"

func TestStateStringCoversAllValues(t *testing.T) {
	states := []State{
		StateIdle, StateDialing, StateWaitingPrompt, StateInstalling,
		StateLaunchingServer, StateConnected, StateDisconnected,
	}
	seen := make(map[string]bool)
	for _, s := range states {
		str := s.String()
		if str == "UNKNOWN" {
			t.Errorf("State(%d).String() = UNKNOWN, want a named state", s)
		}
		if seen[str] {
			t.Errorf("duplicate state string %q", str)
		}
		seen[str] = true
	}
}

func TestUnknownStateString(t *testing.T) {
	if got := State(99).String(); got != "UNKNOWN" {
		t.Errorf("State(99).String() = %q, want UNKNOWN", got)
	}
}
