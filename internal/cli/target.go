package cli

import (
	"github.com/spf13/cobra"

	"shop-rank-tracker/internal/app"
)

var (
	targetKeyword    string
	targetMatchMode  string
	targetMatchValue string
	targetSort       string
	targetInactive   bool
)

var targetCmd = &cobra.Command{
	Use:   "target",
	Short: "Manage tracked targets",
}

var targetAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a keyword and the store or title to look for",
	RunE: func(cmd *cobra.Command, args []string) error {
		active := !targetInactive
		return getApp().AddTarget(cmd.Context(), app.TargetInput{
			Keyword:    targetKeyword,
			MatchMode:  targetMatchMode,
			MatchValue: targetMatchValue,
			Sort:       targetSort,
			Active:     &active,
		})
	},
}

var targetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every target",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ListTargets(cmd.Context())
	},
}

var targetEditCmd = &cobra.Command{
	Use:   "edit <target-id>",
	Short: "Change fields of a target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		var edit app.TargetEdit
		flags := cmd.Flags()
		if flags.Changed("keyword") {
			edit.Keyword = &targetKeyword
		}
		if flags.Changed("match") {
			edit.MatchMode = &targetMatchMode
		}
		if flags.Changed("value") {
			edit.MatchValue = &targetMatchValue
		}
		if flags.Changed("sort") {
			edit.Sort = &targetSort
		}
		return getApp().EditTarget(cmd.Context(), id, edit)
	},
}

var targetEnableCmd = &cobra.Command{
	Use:   "enable <target-id>",
	Short: "Include a target in batches",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return getApp().SetTargetActive(cmd.Context(), id, true)
	},
}

var targetDisableCmd = &cobra.Command{
	Use:   "disable <target-id>",
	Short: "Exclude a target from batches, keeping its history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return getApp().SetTargetActive(cmd.Context(), id, false)
	},
}

var targetRemoveCmd = &cobra.Command{
	Use:   "remove <target-id>",
	Short: "Delete a target together with its observations and alert log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return getApp().RemoveTarget(cmd.Context(), id)
	},
}

var targetImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Register every target listed in a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ImportTargets(cmd.Context(), args[0])
	},
}

func init() {
	for _, c := range []*cobra.Command{targetAddCmd, targetEditCmd} {
		c.Flags().StringVar(&targetKeyword, "keyword", "", "Search keyword")
		c.Flags().StringVar(&targetMatchMode, "match", "store", "Match mode: store, title or both")
		c.Flags().StringVar(&targetMatchValue, "value", "", "Store name or title fragment to look for")
		c.Flags().StringVar(&targetSort, "sort", "relevance", "Result order: relevance, date, price-asc or price-desc")
	}
	targetAddCmd.Flags().BoolVar(&targetInactive, "inactive", false, "Register without including it in batches")
	_ = targetAddCmd.MarkFlagRequired("keyword")
	_ = targetAddCmd.MarkFlagRequired("value")

	targetCmd.AddCommand(targetAddCmd, targetListCmd, targetEditCmd, targetEnableCmd, targetDisableCmd, targetRemoveCmd, targetImportCmd)
}
