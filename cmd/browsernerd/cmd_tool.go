package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"browsernerd/internal/tools"
)

var toolCmd = &cobra.Command{
	Use:   "tool [name] [json-args]",
	Short: "Invoke any registered tool, or list them",
	Long: `With no name, lists every tool and its arguments. Otherwise runs the
tool with the JSON object given as the second argument.

Example:
  browsernerd tool browser_click '{"snapshotId":"snap_1767323045000_ab12cd34","snapId":"3"}'`,
	Args: cobra.MaximumNArgs(2),
	RunE: runToolCmd,
}

func runToolCmd(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()
		return printTools(cmd.OutOrStdout(), a.tools)
	}

	toolArgs, err := parseToolArgs(args[1:])
	if err != nil {
		return err
	}
	return runTool(cmd, args[0], toolArgs)
}

func parseToolArgs(args []string) (map[string]any, error) {
	out := map[string]any{}
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(args[0]), &out); err != nil {
		return nil, fmt.Errorf("tool arguments must be a JSON object: %w", err)
	}
	return out, nil
}

// printTools writes one table per category, highest priority first.
func printTools(w io.Writer, reg *tools.Registry) error {
	if _, err := fmt.Fprintf(w, "%d tools\n\n", reg.Count()); err != nil {
		return err
	}
	for _, cat := range tools.Categories {
		t := newSimpleTable(string(cat), "TOOL", "ARGS", "DESCRIPTION")
		for _, tool := range reg.GetByCategory(cat) {
			var params []string
			for p := range tool.Schema.Properties {
				params = append(params, p)
			}
			t.addRow(tool.Name, strings.Join(sortedRequired(tool, params), ", "), firstLine(tool.Description))
		}
		if view := t.view(); view != "" {
			if _, err := fmt.Fprintln(w, view); err != nil {
				return err
			}
		}
	}
	return nil
}

// lookupTool rejects a name the registry does not know before any browser work.
func lookupTool(reg *tools.Registry, name string) error {
	if reg.Has(name) {
		return nil
	}
	return fmt.Errorf("%w: %s (%d tools registered, run 'browsernerd tool' to list them)", tools.ErrToolNotFound, name, reg.Count())
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

// sortedRequired lists required parameters first, marked with *.
func sortedRequired(t *tools.Tool, params []string) []string {
	required := map[string]bool{}
	var out []string
	for _, r := range t.Schema.Required {
		required[r] = true
		out = append(out, r+"*")
	}
	var optional []string
	for _, p := range params {
		if !required[p] {
			optional = append(optional, p)
		}
	}
	slices.Sort(optional)
	return append(out, optional...)
}
