// Package hostprofile loads per-destination overrides of rossh's own
// behavior from an optional HCL file, distinct from ssh_config (which
// governs the underlying ssh invocation itself).
package hostprofile

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Profile is a single `host "<alias>"` block.
type Profile struct {
	Alias           string `hcl:"alias,label"`
	RemoteShell     string `hcl:"remote_shell,optional"`
	DisableAgentFwd bool   `hcl:"disable_agent_forwarding,optional"`
	SkipInstall     bool   `hcl:"skip_install,optional"`
}

// File is the decoded contents of hosts.hcl.
type File struct {
	Hosts []Profile `hcl:"host,block"`
}

// Load decodes path, returning an empty File (not an error) if the file
// does not exist, since host profiles are entirely optional.
func Load(path string) (*File, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &File{}, nil
	}

	var f File
	if err := hclsimple.DecodeFile(path, nil, &f); err != nil {
		return nil, fmt.Errorf("hostprofile: decode %s: %w", path, err)
	}
	return &f, nil
}

// Lookup returns the profile for alias, and whether one was found.
func (f *File) Lookup(alias string) (Profile, bool) {
	for _, p := range f.Hosts {
		if p.Alias == alias {
			return p, true
		}
	}
	return Profile{}, false
}
