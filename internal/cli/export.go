package cli

import (
	"github.com/spf13/cobra"

	"shop-rank-tracker/internal/app"
)

var (
	exportDays      int
	exportTarget    int64
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export rank history as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Export(cmd.Context(), app.ExportOptions{
			Days:      exportDays,
			TargetID:  exportTarget,
			CSVPath:   exportCSVPath,
			PNGPath:   exportPNGPath,
			MaxPoints: exportMaxPoints,
		})
	},
}

func init() {
	exportCmd.Flags().IntVar(&exportDays, "days", 30, "Number of days to export")
	exportCmd.Flags().Int64Var(&exportTarget, "target", 0, "Export a single target id")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum points per chart series (defaults to config)")
}
