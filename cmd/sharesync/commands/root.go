// Package commands implements the sharesync CLI.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/edumarques81/sharesync/internal/domain/modes"
	"github.com/edumarques81/sharesync/internal/domain/shares"
	"github.com/edumarques81/sharesync/internal/report"
)

var (
	configFile string
	outputFmt  string
	dryRun     bool
	unmountAll bool
	cleanup    bool
)

// rootCmd reconciles the mount table when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "sharesync",
	Short: "Reconcile CIFS and SSH shares with the mount table",
	Long: `sharesync keeps network shares under the shares root in line with a
desired-state file. It registers each share in the mount table, mounts it,
and removes shares that are no longer wanted. Lines it did not write are
never modified.

Examples:
  # Apply the desired state
  sharesync --desired /etc/sharesync/mounts.json

  # Show what would change
  sharesync --dry-run

  # Unmount and unregister every managed share
  sharesync --unmount-all

  # Drop stale entries without mounting anything
  sharesync --cleanup`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runReconcile,
}

// exitError carries a non-zero exit status that has already been reported.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "Path to config file (default: $XDG_CONFIG_HOME/sharesync/config.yaml or /etc/sharesync/config.yaml)")
	pf.StringP("desired", "d", "", "Desired-state file (.json, .yaml or .toml)")
	pf.String("shares-root", "", "Directory all managed mount points live under")
	pf.String("fstab", "", "Mount table to manage")
	pf.Bool("sudo", false, "Run mount utilities through sudo")
	pf.String("log-level", "", "Log level (debug|info|warn|error)")
	pf.String("log-format", "", "Log format (console|json)")
	pf.StringVarP(&outputFmt, "output", "o", "table", "Output format (table|json|yaml)")

	f := rootCmd.Flags()
	f.BoolVar(&dryRun, "dry-run", false, "Print the plan without changing anything")
	f.BoolVar(&unmountAll, "unmount-all", false, "Unmount and unregister every managed share")
	f.BoolVar(&cleanup, "cleanup", false, "Remove stale managed entries without mounting")
	f.IntP("parallel", "p", 0, "Maximum concurrent mount operations")
	f.Bool("remount", false, "Mount registered shares that are not active")
	f.String("metrics", "", "Write pass metrics to this node_exporter textfile")
	rootCmd.MarkFlagsMutuallyExclusive("dry-run", "unmount-all", "cleanup")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// Execute runs the CLI and returns the process exit status.
func Execute() int {
	return execute(os.Args[1:], os.Stdout)
}

func execute(args []string, out io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd.SetArgs(args)
	rootCmd.SetOut(out)
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return modes.ExitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	rootCmd.PrintErrf("Error: %v\n", err)
	return modes.ExitFatal
}

func selectedMode() modes.Mode {
	switch {
	case dryRun:
		return modes.ModeDryRun
	case unmountAll:
		return modes.ModeUnmountAll
	case cleanup:
		return modes.ModeCleanup
	default:
		return modes.ModeApply
	}
}

func runReconcile(cmd *cobra.Command, args []string) error {
	format, err := report.ParseFormat(outputFmt)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	mode := selectedMode()

	var desired []shares.Descriptor
	if mode != modes.ModeUnmountAll {
		if desired, err = loadDesired(cfg); err != nil {
			log.Error().Err(err).Str("path", cfg.DesiredPath).Msg("Failed to load desired shares")
			return err
		}
	}

	ctrl := newController(cfg)
	summary := ctrl.Run(cmd.Context(), mode, desired)

	printer := report.NewPrinter(cmd.OutOrStdout(), format)
	if mode == modes.ModeDryRun && summary.Plan != nil && printer.Format() == report.FormatTable {
		if err := printer.PrintPlan(summary.Plan); err != nil {
			return err
		}
		cmd.Println()
	}
	if err := printer.PrintSummary(summary); err != nil {
		return err
	}

	if code := summary.ExitCode(); code != modes.ExitOK {
		return &exitError{code: code}
	}
	return nil
}
