package cli

import (
	"github.com/spf13/cobra"

	"shop-rank-tracker/internal/app"
)

var (
	policyEnabled   bool
	policyThreshold int
	policyTopTier   bool
	policyCutoff    int
	policyLost      bool
	policyNewEntry  bool
)

var policyCmd = &cobra.Command{
	Use:   "alert-policy",
	Short: "Show or change which rank changes raise alerts",
}

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective alert policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ShowPolicy(cmd.Context())
	},
}

var policySetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change the alert policy; unset flags keep their value",
	RunE: func(cmd *cobra.Command, args []string) error {
		var update app.PolicyUpdate
		flags := cmd.Flags()
		if flags.Changed("enabled") {
			update.Enabled = &policyEnabled
		}
		if flags.Changed("threshold") {
			update.StepThreshold = &policyThreshold
		}
		if flags.Changed("top-tier") {
			update.TopTier = &policyTopTier
		}
		if flags.Changed("cutoff") {
			update.TopTierCutoff = &policyCutoff
		}
		if flags.Changed("lost") {
			update.Lost = &policyLost
		}
		if flags.Changed("new-entry") {
			update.NewEntry = &policyNewEntry
		}
		return getApp().SetPolicy(cmd.Context(), update)
	},
}

func init() {
	policySetCmd.Flags().BoolVar(&policyEnabled, "enabled", false, "Master switch for alerting")
	policySetCmd.Flags().IntVar(&policyThreshold, "threshold", 5, "Minimum rank movement that alerts")
	policySetCmd.Flags().BoolVar(&policyTopTier, "top-tier", true, "Alert on entering or leaving the top tier")
	policySetCmd.Flags().IntVar(&policyCutoff, "cutoff", 10, "Last rank that counts as top tier")
	policySetCmd.Flags().BoolVar(&policyLost, "lost", true, "Alert when a ranked target drops out")
	policySetCmd.Flags().BoolVar(&policyNewEntry, "new-entry", true, "Alert when an unranked target appears")

	policyCmd.AddCommand(policyShowCmd, policySetCmd)
}
