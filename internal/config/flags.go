package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FlagKeys maps CLI flag names to configuration keys.
var FlagKeys = map[string]string{
	"desired":     "desired_path",
	"shares-root": "shares_root",
	"fstab":       "table_path",
	"parallel":    "parallelism",
	"remount":     "remount_inactive",
	"sudo":        "exec.sudo",
	"log-level":   "logging.level",
	"log-format":  "logging.format",
	"metrics":     "metrics.textfile",
}

// BindFlags binds every known flag present in fs to its key in v. Flags
// only override the configuration when set explicitly.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range FlagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag --%s: %w", name, err)
		}
	}
	return nil
}
