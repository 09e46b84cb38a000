// Package core holds ambient, cross-cutting concerns shared by the client
// controller and the remote agent: configuration, versioning, and logging
// setup. Nothing in here knows about the control-frame protocol.
package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	BaseDirName  = ".config/rossh"
	HostsFile    = "hosts.hcl"
	HistoryFile  = "sessions.db"
	ConfigName   = "config"
)

var Config *viper.Viper

var globalFlagsToConfigKey = map[string]string{
	"config-path": "config_path",
	"verbose":     "verbose",
}

// GetHostsPath returns the path to the optional HCL host-profile file.
func GetHostsPath() string {
	return filepath.Join(Config.GetString("config_path"), HostsFile)
}

// GetHistoryPath returns the path to the local session-history database.
func GetHistoryPath() string {
	return filepath.Join(Config.GetString("config_path"), HistoryFile)
}

// GetSSHPath returns the ssh binary the client controller should exec.
func GetSSHPath() string {
	return Config.GetString("ssh_path")
}

func GetReconnectEnabled() bool {
	return Config.GetBool("reconnect.enabled")
}

func GetReconnectInitialBackoff() string {
	return Config.GetString("reconnect.initial_backoff")
}

func GetReconnectMaxBackoff() string {
	return Config.GetString("reconnect.max_backoff")
}

func GetReconnectBackoffFactor() int {
	return Config.GetInt("reconnect.backoff_factor")
}

func GetReconnectMaxRetries() int {
	return Config.GetInt("reconnect.max_retries")
}

// InitializeConfig loads ~/.config/rossh/config.toml (creating it with
// defaults if absent), binds environment variables and the given command's
// global flags, and starts a watcher so a running client picks up edits —
// notably reconnect.enabled — without needing a restart mid-session.
func InitializeConfig(cmd *cobra.Command) ([]string, error) {
	Config = viper.New()

	// cmd.Root() reaches the persistent flag regardless of whether cmd is
	// the root command itself (which disables flag parsing, so its own
	// Flags() never merges persistent flags in) or one of its subcommands.
	configPath, err := cmd.Root().PersistentFlags().GetString("config-path")
	if err != nil {
		panic("Unable to determine config path")
	}
	Config.AddConfigPath(configPath)

	Config.SetConfigName(ConfigName)
	Config.SetConfigType("toml")

	Config.SetDefault("verbose", 0)
	Config.SetDefault("ssh_path", "ssh")
	Config.SetDefault("reconnect.enabled", true)
	Config.SetDefault("reconnect.initial_backoff", "1s")
	Config.SetDefault("reconnect.max_backoff", "5m")
	Config.SetDefault("reconnect.backoff_factor", 2)
	Config.SetDefault("reconnect.max_retries", 10)

	Config.SetEnvPrefix("rossh")

	if err := Config.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if err := os.MkdirAll(configPath, 0o755); err != nil {
				panic(err)
			}
			Config.SafeWriteConfig()
		} else {
			panic(err)
		}
	}

	Config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	Config.AutomaticEnv()

	Config.WatchConfig()
	Config.OnConfigChange(func(fsnotify.Event) {})

	if cmd != nil {
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			configKey, ok := globalFlagsToConfigKey[f.Name]
			if !ok {
				return
			}

			if !f.Changed && Config.IsSet(configKey) {
				cmd.Flags().Set(f.Name, fmt.Sprintf("%v", Config.Get(configKey)))
			} else {
				Config.Set(configKey, fmt.Sprintf("%v", f.Value))
			}
		})
	}

	return []string{}, nil
}
