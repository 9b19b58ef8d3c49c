package cli

import (
	"github.com/spf13/cobra"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Control the daily batch trigger of the daemon",
}

var scheduleStartCmd = &cobra.Command{
	Use:   "start <HH:MM>",
	Short: "Enable the daily trigger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().StartSchedule(cmd.Context(), args[0])
	},
}

var scheduleStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Disable the daily trigger",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().StopSchedule(cmd.Context())
	},
}

var scheduleStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the trigger, next run, and last check",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ScheduleStatus(cmd.Context())
	},
}

func init() {
	scheduleCmd.AddCommand(scheduleStartCmd, scheduleStopCmd, scheduleStatusCmd)
}
