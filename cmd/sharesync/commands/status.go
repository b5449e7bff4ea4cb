package commands

import (
	"github.com/spf13/cobra"

	"github.com/edumarques81/sharesync/internal/report"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show managed, desired and live shares",
	Long: `Display every share that is registered in the mount table or declared in
the desired-state file, whether it is mounted, and any orphaned mounts under
the shares root. Nothing is changed.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := report.ParseFormat(outputFmt)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	desired, err := loadDesired(cfg)
	if err != nil {
		return err
	}

	rep, err := newController(cfg).Status(desired)
	if err != nil {
		return err
	}
	return report.NewPrinter(cmd.OutOrStdout(), format).PrintStatus(rep)
}
