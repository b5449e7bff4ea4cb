// Package config loads sharesync settings from file, environment and flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// SHARESYNC_SHARES_ROOT or SHARESYNC_TIMEOUTS_MOUNT.
const EnvPrefix = "SHARESYNC"

// Config is the complete sharesync configuration.
//
// Sources, highest precedence first:
//  1. CLI flags
//  2. Environment variables (SHARESYNC_*, plus the legacy names below)
//  3. Configuration file (YAML or TOML)
//  4. Defaults
type Config struct {
	// SharesRoot is the directory all managed mount points live under.
	SharesRoot string `mapstructure:"shares_root" validate:"required,startswith=/"`

	// TablePath is the static mount table to manage.
	TablePath string `mapstructure:"table_path" validate:"required"`

	// MountsPath is the kernel mount list.
	MountsPath string `mapstructure:"mounts_path" validate:"required"`

	// DesiredPath is the desired-state file (JSON, YAML or TOML).
	DesiredPath string `mapstructure:"desired_path"`

	// Parallelism bounds concurrent mount operations within a phase.
	Parallelism int `mapstructure:"parallelism" validate:"gte=1,lte=64"`

	// RemountInactive mounts registered shares that are not active.
	RemountInactive bool `mapstructure:"remount_inactive"`

	Timeouts TimeoutsConfig `mapstructure:"timeouts"`
	Unmount  UnmountConfig  `mapstructure:"unmount"`
	Exec     ExecConfig     `mapstructure:"exec"`
	CIFS     CIFSConfig     `mapstructure:"cifs"`
	SSH      SSHConfig      `mapstructure:"ssh"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Notify   NotifyConfig   `mapstructure:"notify"`
}

// TimeoutsConfig bounds each OS call.
type TimeoutsConfig struct {
	Mount   time.Duration `mapstructure:"mount" validate:"gt=0"`
	Unmount time.Duration `mapstructure:"unmount" validate:"gt=0"`
}

// UnmountConfig controls busy-unmount retries before a lazy unmount.
type UnmountConfig struct {
	Retries        int           `mapstructure:"retries" validate:"gte=0,lte=20"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" validate:"gt=0"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" validate:"gtefield=InitialBackoff"`
}

// ExecConfig controls how mount utilities are invoked.
type ExecConfig struct {
	// Sudo runs mount, umount, mkdir and rmdir through sudo.
	Sudo bool `mapstructure:"sudo"`
}

// CIFSConfig holds defaults injected into every CIFS share.
type CIFSConfig struct {
	// CredentialsFile is referenced as credentials=<file>. It is never read.
	CredentialsFile string   `mapstructure:"credentials_file" validate:"omitempty,startswith=/"`
	Domain          string   `mapstructure:"domain"`
	UID             string   `mapstructure:"uid"`
	GID             string   `mapstructure:"gid"`
	FileMode        string   `mapstructure:"file_mode" validate:"omitempty,octalmode"`
	DirMode         string   `mapstructure:"dir_mode" validate:"omitempty,octalmode"`
	Options         []string `mapstructure:"options" validate:"dive,mountoption"`
}

// SSHConfig holds defaults injected into every SSH share.
type SSHConfig struct {
	// IdentityFile is referenced as IdentityFile=<file>. It is never read.
	IdentityFile string   `mapstructure:"identity_file" validate:"omitempty,startswith=/"`
	User         string   `mapstructure:"user"`
	UID          string   `mapstructure:"uid"`
	GID          string   `mapstructure:"gid"`
	Options      []string `mapstructure:"options" validate:"dive,mountoption"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Valid values: console, json
	Format string `mapstructure:"format" validate:"required,oneof=console json"`
}

// MetricsConfig controls the node_exporter textfile written after a pass.
type MetricsConfig struct {
	// Textfile is the .prom file to write. Empty disables metrics.
	Textfile string `mapstructure:"textfile" validate:"omitempty,endswith=.prom"`
}

// NotifyConfig lists hooks run after a pass changed mounts.
type NotifyConfig struct {
	MPD MPDConfig `mapstructure:"mpd"`
}

// MPDConfig asks a Music Player Daemon to rescan its library.
type MPDConfig struct {
	// Address is host:port. Empty disables the hook.
	Address  string `mapstructure:"address" validate:"omitempty,hostname_port"`
	Password string `mapstructure:"password"`
}

// legacyEnv maps keys to the environment variables used by earlier
// deployments.
var legacyEnv = map[string]string{
	"ssh.identity_file":     "LINUX_SSH_LOCATION",
	"ssh.user":              "LINUX_SSH_USER",
	"cifs.credentials_file": "CIFS_FILE_LOCATION",
	"cifs.domain":           "CIFS_DOMAIN",
	"desired_path":          "DESIRED_MOUNTS_FILE_PATH",
}

// New returns a viper instance with environment bindings and defaults, ready
// for flags to be bound before Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	for key, legacy := range legacyEnv {
		envKey := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		// The first name found wins, so the prefixed variable takes precedence.
		_ = v.BindEnv(key, envKey, legacy)
	}
	return v
}

// Load reads configuration into a validated Config. configPath may be
// empty, in which case the default locations are searched and a missing
// file is not an error.
func Load(configPath string) (*Config, error) {
	return LoadWith(New(), configPath)
}

// LoadWith is Load on a prepared viper instance, typically one with CLI
// flags bound.
func LoadWith(v *viper.Viper, configPath string) (*Config, error) {
	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func readConfigFile(v *viper.Viper, configPath string) error {
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("config file %s does not exist", configPath)
			}
			return fmt.Errorf("failed to read config file: %w", err)
		}
		v.SetConfigFile(configPath)
	} else {
		for _, dir := range configDirs() {
			v.AddConfigPath(dir)
		}
		v.SetConfigName("config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// configDirs returns the default search path: $XDG_CONFIG_HOME/sharesync
// (or ~/.config/sharesync) and /etc/sharesync.
func configDirs() []string {
	var dirs []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		dirs = append(dirs, filepath.Join(xdg, "sharesync"))
	} else if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", "sharesync"))
	}
	return append(dirs, "/etc/sharesync")
}
