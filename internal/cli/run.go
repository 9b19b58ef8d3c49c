package cli

import (
	"github.com/spf13/cobra"

	"shop-rank-tracker/internal/app"
)

var runAt string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon: daily batch trigger and metrics listener",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context(), app.RunOptions{At: runAt})
	},
}

func init() {
	runCmd.Flags().StringVar(&runAt, "at", "", "Enable the daily trigger at HH:MM before starting")
}
