package cmd

import (
	"flag"
	"testing"
)

// The client's bootstrap builds the remote launch command as a fixed
// string; this confirms the flag shape it relies on actually parses the
// way runAgentRun expects, without spawning a real endpoint.
func TestAgentRunFlagShape(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantVer  int
		wantTerm string
		wantKill []string
	}{
		{
			name:     "no orphans to kill",
			args:     []string{"-V", "4", "-t", "abc123", "--kill"},
			wantVer:  4,
			wantTerm: "abc123",
			wantKill: nil,
		},
		{
			name:     "two orphans to kill",
			args:     []string{"-V", "4", "-t", "abc123", "--kill", "id1", "id2"},
			wantVer:  4,
			wantTerm: "abc123",
			wantKill: []string{"id1", "id2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := flag.NewFlagSet("agent run", flag.ContinueOnError)
			version := fs.Int("V", 0, "")
			termID := fs.String("t", "", "")
			killFlag := fs.Bool("kill", false, "")
			if err := fs.Parse(tt.args); err != nil {
				t.Fatalf("Parse: %v", err)
			}

			if *version != tt.wantVer {
				t.Errorf("version = %d, want %d", *version, tt.wantVer)
			}
			if *termID != tt.wantTerm {
				t.Errorf("termID = %q, want %q", *termID, tt.wantTerm)
			}

			var kill []string
			if *killFlag {
				kill = fs.Args()
			}
			if len(kill) != len(tt.wantKill) {
				t.Fatalf("kill = %v, want %v", kill, tt.wantKill)
			}
			for i := range kill {
				if kill[i] != tt.wantKill[i] {
					t.Errorf("kill[%d] = %q, want %q", i, kill[i], tt.wantKill[i])
				}
			}
		})
	}
}

func TestRunAgentUnknownSubcommand(t *testing.T) {
	if code := RunAgent([]string{"bogus"}); code != 2 {
		t.Errorf("RunAgent(bogus) = %d, want 2", code)
	}
	if code := RunAgent(nil); code != 2 {
		t.Errorf("RunAgent(nil) = %d, want 2", code)
	}
}
