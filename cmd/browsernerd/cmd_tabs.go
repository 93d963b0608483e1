package main

import (
	"github.com/spf13/cobra"

	"browsernerd/internal/tools"
)

var tabsCmd = &cobra.Command{
	Use:   "tabs",
	Short: "List, open, switch and close tabs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTool(cmd, tools.ToolListTabs, nil)
	},
}

var tabsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List open tabs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTool(cmd, tools.ToolListTabs, nil)
	},
}

var tabsNewCmd = &cobra.Command{
	Use:   "new [url]",
	Short: "Open a tab without activating it",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := map[string]any{}
		if len(args) == 1 {
			a["url"] = args[0]
		}
		return runTool(cmd, tools.ToolCreateTab, a)
	},
}

var tabsSwitchCmd = &cobra.Command{
	Use:   "switch <tab-id>",
	Short: "Make a tab the session's active tab",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTool(cmd, tools.ToolSwitchTab, map[string]any{"tabId": args[0]})
	},
}

var tabsCloseCmd = &cobra.Command{
	Use:   "close <tab-id>",
	Short: "Close a tab (the last tab is protected)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTool(cmd, tools.ToolCloseTab, map[string]any{"tabId": args[0]})
	},
}

func init() {
	tabsCmd.AddCommand(tabsListCmd, tabsNewCmd, tabsSwitchCmd, tabsCloseCmd)
}
