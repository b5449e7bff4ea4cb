package config

import (
	"strings"
	"time"
)

// Default values.
const (
	DefaultSharesRoot  = "/shares"
	DefaultTablePath   = "/etc/fstab"
	DefaultMountsPath  = "/proc/self/mounts"
	DefaultDesiredPath = "/etc/sharesync/mounts.json"
	DefaultParallelism = 4
	DefaultOwnerUID    = "1001"
	DefaultOwnerGID    = "5001"
)

// ApplyDefaults fills zero values with defaults and normalises the log
// level. Explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	if cfg.SharesRoot == "" {
		cfg.SharesRoot = DefaultSharesRoot
	}
	if cfg.TablePath == "" {
		cfg.TablePath = DefaultTablePath
	}
	if cfg.MountsPath == "" {
		cfg.MountsPath = DefaultMountsPath
	}
	if cfg.DesiredPath == "" {
		cfg.DesiredPath = DefaultDesiredPath
	}
	if cfg.Parallelism == 0 {
		cfg.Parallelism = DefaultParallelism
	}

	applyTimeoutDefaults(&cfg.Timeouts)
	applyUnmountDefaults(&cfg.Unmount)
	applyCIFSDefaults(&cfg.CIFS)
	applySSHDefaults(&cfg.SSH)
	applyLoggingDefaults(&cfg.Logging)
}

func applyTimeoutDefaults(cfg *TimeoutsConfig) {
	if cfg.Mount == 0 {
		cfg.Mount = 30 * time.Second
	}
	if cfg.Unmount == 0 {
		cfg.Unmount = 15 * time.Second
	}
}

func applyUnmountDefaults(cfg *UnmountConfig) {
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
}

func applyCIFSDefaults(cfg *CIFSConfig) {
	if cfg.UID == "" {
		cfg.UID = DefaultOwnerUID
	}
	if cfg.GID == "" {
		cfg.GID = DefaultOwnerGID
	}
}

func applySSHDefaults(cfg *SSHConfig) {
	if cfg.UID == "" {
		cfg.UID = DefaultOwnerUID
	}
	if cfg.GID == "" {
		cfg.GID = DefaultOwnerGID
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "console"
	}
}

// defaultKeys lists every key with its default so that environment
// variables are picked up on Unmarshal even when no file sets the key.
var defaultKeys = map[string]any{
	"shares_root":             DefaultSharesRoot,
	"table_path":              DefaultTablePath,
	"mounts_path":             DefaultMountsPath,
	"desired_path":            DefaultDesiredPath,
	"parallelism":             DefaultParallelism,
	"remount_inactive":        false,
	"timeouts.mount":          30 * time.Second,
	"timeouts.unmount":        15 * time.Second,
	"unmount.retries":         3,
	"unmount.initial_backoff": 500 * time.Millisecond,
	"unmount.max_backoff":     5 * time.Second,
	"exec.sudo":               false,
	"cifs.credentials_file":   "",
	"cifs.domain":             "",
	"cifs.uid":                DefaultOwnerUID,
	"cifs.gid":                DefaultOwnerGID,
	"cifs.file_mode":          "",
	"cifs.dir_mode":           "",
	"cifs.options":            []string{"auto"},
	"ssh.identity_file":       "",
	"ssh.user":                "",
	"ssh.uid":                 DefaultOwnerUID,
	"ssh.gid":                 DefaultOwnerGID,
	"ssh.options":             []string{"auto"},
	"logging.level":           "INFO",
	"logging.format":          "console",
	"metrics.textfile":        "",
	"notify.mpd.address":      "",
	"notify.mpd.password":     "",
}

type defaultSetter interface {
	SetDefault(key string, value any)
}

func setDefaults(v defaultSetter) {
	for key, value := range defaultKeys {
		v.SetDefault(key, value)
	}
}
