package cli

import (
	"github.com/spf13/cobra"
)

var simulateDryRun bool

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Send a sample rank alert through every configured channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SimulateAlert(cmd.Context(), simulateDryRun)
	},
}

func init() {
	simulateCmd.Flags().BoolVar(&simulateDryRun, "dry-run", false, "Print the rendered message instead of sending it")
}
