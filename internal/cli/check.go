package cli

import (
	"github.com/spf13/cobra"

	"shop-rank-tracker/internal/app"
)

var checkAlerts bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Resolve every active target now and record the ranks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Check(cmd.Context(), app.CheckOptions{Alerts: checkAlerts})
	},
}

var testCmd = &cobra.Command{
	Use:   "test <target-id>",
	Short: "Resolve one target with a shallow page budget without recording it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return getApp().TestTarget(cmd.Context(), id)
	},
}

func init() {
	checkCmd.Flags().BoolVar(&checkAlerts, "alerts", false, "Run change detection and send notifications")
}
