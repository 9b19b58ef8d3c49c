package cli

import (
	"github.com/spf13/cobra"
)

var (
	historyDays int
	alertsLimit int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the dashboard summary and latest ranks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Show(cmd.Context())
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <target-id>",
	Short: "Display a target's observations and statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return getApp().History(cmd.Context(), id, historyDays)
	},
}

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Display the most recent alert log rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Alerts(cmd.Context(), alertsLimit)
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyDays, "days", 30, "Number of days to display")
	alertsCmd.Flags().IntVar(&alertsLimit, "limit", 50, "Number of rows to display")
}
