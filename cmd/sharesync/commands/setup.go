package commands

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/edumarques81/sharesync/internal/config"
	"github.com/edumarques81/sharesync/internal/domain/modes"
	"github.com/edumarques81/sharesync/internal/domain/shares"
	"github.com/edumarques81/sharesync/internal/infra/credentials"
	"github.com/edumarques81/sharesync/internal/infra/desired"
	"github.com/edumarques81/sharesync/internal/infra/fstab"
	"github.com/edumarques81/sharesync/internal/infra/metrics"
	"github.com/edumarques81/sharesync/internal/infra/mounter"
	"github.com/edumarques81/sharesync/internal/infra/mountinfo"
	"github.com/edumarques81/sharesync/internal/infra/mpd"
	"github.com/edumarques81/sharesync/internal/infra/runner"
	"github.com/edumarques81/sharesync/internal/version"
)

// loadConfig reads configuration with the command's flags applied and sets
// up logging.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := config.New()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return nil, err
	}
	cfg, err := config.LoadWith(v, configFile)
	if err != nil {
		return nil, err
	}
	if err := initLogger(cfg.Logging); err != nil {
		return nil, err
	}

	log.Debug().
		Str("version", version.GetInfo().String()).
		Str("shares_root", cfg.SharesRoot).
		Str("table", cfg.TablePath).
		Str("desired", cfg.DesiredPath).
		Int("parallelism", cfg.Parallelism).
		Bool("sudo", cfg.Exec.Sudo).
		Msg("Configuration")
	return cfg, nil
}

// initLogger configures the global zerolog logger.
func initLogger(cfg config.LoggingConfig) error {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zerolog.SetGlobalLevel(level)

	switch cfg.Format {
	case "json":
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	default:
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return nil
}

// loadDesired reads the desired-state file and injects credentials and
// ownership defaults.
func loadDesired(cfg *config.Config) ([]shares.Descriptor, error) {
	declared, err := desired.Load(cfg.DesiredPath)
	if err != nil {
		return nil, err
	}
	return credentials.NewResolver(cfg).Resolve(declared)
}

// newController wires the store, inspector and executor for cfg.
func newController(cfg *config.Config) *modes.Controller {
	live := mountinfo.NewInspector(cfg.MountsPath, cfg.SharesRoot)
	exec := mounter.NewExecutor(runner.NewExecRunner(cfg.Exec.Sudo), live, mounter.Options{
		MountTimeout:   cfg.Timeouts.Mount,
		UnmountTimeout: cfg.Timeouts.Unmount,
		UnmountRetries: cfg.Unmount.Retries,
		InitialBackoff: cfg.Unmount.InitialBackoff,
		MaxBackoff:     cfg.Unmount.MaxBackoff,
	})

	ctrl := modes.NewController(fstab.NewStore(cfg.TablePath, cfg.SharesRoot), live, exec, modes.Options{
		Root:            cfg.SharesRoot,
		Parallelism:     cfg.Parallelism,
		RemountInactive: cfg.RemountInactive,
	})
	if rec := metrics.NewTextfile(cfg.Metrics.Textfile); rec != nil {
		ctrl.SetRecorder(rec)
	}
	if n := mpd.NewNotifier(cfg.Notify.MPD.Address, cfg.Notify.MPD.Password); n != nil {
		ctrl.SetNotifier(n)
	}
	return ctrl
}
