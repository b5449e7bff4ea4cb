package commands

import (
	"github.com/spf13/cobra"

	"github.com/edumarques81/sharesync/internal/report"
	"github.com/edumarques81/sharesync/internal/version"
)

var versionShort bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  `Display the sharesync version, build information, and system details.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.GetInfo()
		if versionShort {
			cmd.Println(info.Version)
			return nil
		}

		format, err := report.ParseFormat(outputFmt)
		if err != nil {
			return err
		}
		if format == report.FormatTable {
			return report.SimpleTable(cmd.OutOrStdout(), info.Pairs())
		}
		return report.NewPrinter(cmd.OutOrStdout(), format).Print(info)
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show only version number")
}
