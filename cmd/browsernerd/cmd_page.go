package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"browsernerd/internal/tools"
)

var (
	tabID string

	snapSelector     string
	snapMaxTokens    int
	snapMaxIter      int
	snapFilterHidden bool
	snapOut          string

	clickWaitNav  bool
	clickWaitTime int

	typeClear      bool
	typePressEnter bool
	typeDelay      int

	selectValue string
	selectText  string
	selectIndex int

	navWaitUntil string
	navTimeout   int

	resolveLive   bool
	resolveTo     string
	resolveMinCon float64
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Capture a compressed DOM snapshot of the active tab",
	Long: `Prints the compressed HTML and the interactive elements with their snap
ids. Use the printed snapshot id with click, type and select.

--out writes the full snapshot, locators included, as JSON.`,
	Args: cobra.NoArgs,
	RunE: runSnapshot,
}

var clickCmd = &cobra.Command{
	Use:   "click <snapshot-id> <snap-id>",
	Short: "Click a snapshot element",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := refArgs(args)
		if cmd.Flags().Changed("wait-for-navigation") {
			a["waitForNavigation"] = clickWaitNav
		}
		if cmd.Flags().Changed("wait-time") {
			a["waitTime"] = clickWaitTime
		}
		return runTool(cmd, tools.ToolClick, a)
	},
}

var typeCmd = &cobra.Command{
	Use:   "type <snapshot-id> <snap-id> <text>",
	Short: "Type into an input or textarea from a snapshot",
	Long: `Types text into the element. The field is cleared first unless
--clear=false, in which case the text is appended.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := refArgs(args[:2])
		a["text"] = args[2]
		a["clear"] = typeClear
		a["pressEnter"] = typePressEnter
		if typeDelay > 0 {
			a["delay"] = typeDelay
		}
		return runTool(cmd, tools.ToolType, a)
	},
}

var selectCmd = &cobra.Command{
	Use:   "select <snapshot-id> <snap-id>",
	Short: "Choose a dropdown option by --value, --text or --index",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := refArgs(args)
		if cmd.Flags().Changed("value") {
			a["value"] = selectValue
		}
		if cmd.Flags().Changed("text") {
			a["text"] = selectText
		}
		if cmd.Flags().Changed("index") {
			a["index"] = selectIndex
		}
		return runTool(cmd, tools.ToolSelect, a)
	},
}

var navigateCmd = &cobra.Command{
	Use:   "navigate <url>",
	Short: "Load a URL and wait for it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := withTab(map[string]any{"url": args[0], "waitUntil": navWaitUntil})
		if navTimeout > 0 {
			a["timeout"] = navTimeout
		}
		return runTool(cmd, tools.ToolNavigate, a)
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show URL, title, ready state and viewport of a tab",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTool(cmd, tools.ToolInfo, withTab(map[string]any{}))
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <snapshot-id> <snap-id>",
	Short: "Match a snapshot element against a newer snapshot or the live page",
	Long: `Without --live, finds the element of a newer stored snapshot (--to, or
the latest) that corresponds to the given element. No browser is needed,
only the persisted snapshot store.

With --live, resolves the element on the live page and reports the
strategy and confidence without acting on it.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if resolveLive {
			a := refArgs(args)
			if resolveMinCon > 0 {
				a["minConfidence"] = resolveMinCon
			}
			return runTool(cmd, tools.ToolResolve, a)
		}
		a := map[string]any{"fromSnapshotId": args[0], "snapId": args[1]}
		if resolveTo != "" {
			a["toSnapshotId"] = resolveTo
		}
		if resolveMinCon > 0 {
			a["minConfidence"] = resolveMinCon
		}
		return runTool(cmd, tools.ToolRemapElement, a)
	},
}

func init() {
	for _, c := range []*cobra.Command{snapshotCmd, clickCmd, typeCmd, selectCmd, navigateCmd, infoCmd, resolveCmd} {
		c.Flags().StringVar(&tabID, "tab", "", "Tab id (default: active tab)")
	}

	snapshotCmd.Flags().StringVar(&snapSelector, "selector", "", "CSS selector narrowing the captured HTML")
	snapshotCmd.Flags().IntVar(&snapMaxTokens, "max-tokens", 0, "Token budget (default: from config or page size)")
	snapshotCmd.Flags().IntVar(&snapMaxIter, "max-iterations", 0, "Compression passes per attempt (default: from config)")
	snapshotCmd.Flags().BoolVar(&snapFilterHidden, "filter-hidden", true, "Strip hidden elements before compression")
	snapshotCmd.Flags().StringVarP(&snapOut, "out", "o", "", "Write the snapshot as JSON to this file")

	clickCmd.Flags().BoolVar(&clickWaitNav, "wait-for-navigation", false, "Wait for a page load after clicking")
	clickCmd.Flags().IntVar(&clickWaitTime, "wait-time", 1000, "Milliseconds to wait after clicking")

	typeCmd.Flags().BoolVar(&typeClear, "clear", true, "Clear the field first")
	typeCmd.Flags().BoolVar(&typePressEnter, "enter", false, "Press Enter and submit afterwards")
	typeCmd.Flags().IntVar(&typeDelay, "delay", 0, "Milliseconds between characters")

	selectCmd.Flags().StringVar(&selectValue, "value", "", "Option value")
	selectCmd.Flags().StringVar(&selectText, "text", "", "Visible option text")
	selectCmd.Flags().IntVar(&selectIndex, "index", 0, "Zero-based option index")

	navigateCmd.Flags().StringVar(&navWaitUntil, "wait-until", "load", "load, domcontentloaded or networkidle")
	navigateCmd.Flags().IntVar(&navTimeout, "timeout-ms", 0, "Navigation timeout in ms (default from config)")

	resolveCmd.Flags().BoolVar(&resolveLive, "live", false, "Resolve against the live page instead of a stored snapshot")
	resolveCmd.Flags().StringVar(&resolveTo, "to", "", "Snapshot to search (default: latest)")
	resolveCmd.Flags().Float64Var(&resolveMinCon, "min-confidence", 0, "Acceptance threshold (default from config)")
}

func withTab(a map[string]any) map[string]any {
	if tabID != "" {
		a["tabId"] = tabID
	}
	return a
}

func refArgs(args []string) map[string]any {
	return withTab(map[string]any{"snapshotId": args[0], "snapId": args[1]})
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	ctx = tools.WithSessionID(ctx, sessionID)

	toolArgs := withTab(map[string]any{"filterHidden": snapFilterHidden})
	if snapSelector != "" {
		toolArgs["selector"] = snapSelector
	}
	if snapMaxTokens > 0 {
		toolArgs["maxTokens"] = snapMaxTokens
	}
	if snapMaxIter > 0 {
		toolArgs["maxIterations"] = snapMaxIter
	}
	if err := a.execute(ctx, cmd, tools.ToolSnapshot, toolArgs); err != nil {
		return err
	}
	if snapOut == "" {
		return nil
	}

	snap, err := a.store.Latest(ctx, sessionID)
	if err != nil {
		return err
	}
	if snap == nil {
		return fmt.Errorf("snapshot was not stored")
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.WriteFile(snapOut, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Snapshot written to %s\n", snapOut)
	return nil
}
