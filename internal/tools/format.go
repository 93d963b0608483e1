package tools

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"browsernerd/internal/browser"
	"browsernerd/internal/dom"
	"browsernerd/internal/snapshot"
)

// listedElements caps the element list printed with a snapshot.
const listedElements = 50

func percent(conf float64) string {
	return fmt.Sprintf("%d%%", int(math.Round(conf*100)))
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func writeResolution(b *strings.Builder, r dom.ResolutionReport) {
	b.WriteString("\nResolution:\n")
	fmt.Fprintf(b, "  Strategy: %s\n", r.Strategy)
	fmt.Fprintf(b, "  Confidence: %s\n", percent(r.Confidence))
}

// FormatElement renders one snapshot element as a single line.
func FormatElement(el dom.Element) string {
	var attrs []string
	if a := el.Locators.Attrs; a != nil {
		if a.Type != "" {
			attrs = append(attrs, fmt.Sprintf("type=%q", a.Type))
		}
		if a.Name != "" {
			attrs = append(attrs, fmt.Sprintf("name=%q", a.Name))
		}
		if a.Placeholder != "" {
			attrs = append(attrs, fmt.Sprintf("placeholder=%q", a.Placeholder))
		}
		if a.Href != "" {
			attrs = append(attrs, fmt.Sprintf("href=%q", a.Href))
		}
	}
	if role := el.Locators.RoleValue(); role != "" {
		attrs = append(attrs, fmt.Sprintf("role=%q", role))
	}

	line := fmt.Sprintf("  [%s] <%s", el.SnapID, el.Tag)
	if len(attrs) > 0 {
		line += " " + strings.Join(attrs, " ")
	}
	line += ">"
	if el.Text != "" {
		line += fmt.Sprintf(" \"%s\"", clip(el.Text, 50))
	}
	return line
}

// FormatSnapshot renders a stored snapshot for the caller.
func FormatSnapshot(s *snapshot.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "DOM Snapshot extracted (%d tokens, %d%% reduction from original):\n\n",
		s.Meta.TokenCount, s.Meta.ReductionPercent)
	fmt.Fprintf(&b, "Snapshot ID: %s\n", s.ID)
	fmt.Fprintf(&b, "URL: %s\n\n", s.URL)
	b.WriteString(s.HTML)
	b.WriteString("\n\n---\n\n")

	fmt.Fprintf(&b, "Found %d interactive elements:\n", s.Meta.ElementCount)
	shown := s.Elements
	if len(shown) > listedElements {
		shown = shown[:listedElements]
	}
	lines := make([]string, len(shown))
	for i, el := range shown {
		lines[i] = FormatElement(el)
	}
	b.WriteString(strings.Join(lines, "\n"))
	if extra := len(s.Elements) - listedElements; extra > 0 {
		fmt.Fprintf(&b, "\n  ... and %d more elements", extra)
	}

	b.WriteString("\n\nYou can now interact with these elements using their snapId:\n")
	fmt.Fprintf(&b, "- browser_click({ snapshotId: %q, snapId: \"0\" }) - Click an element\n", s.ID)
	fmt.Fprintf(&b, "- browser_type({ snapshotId: %q, snapId: \"0\", text: \"...\" }) - Type into input\n", s.ID)
	fmt.Fprintf(&b, "- browser_select({ snapshotId: %q, snapId: \"0\", value: \"...\" }) - Select dropdown option\n\n", s.ID)
	b.WriteString("Note: The live page has NOT been modified. Elements are resolved at action time using robust locators.")
	return b.String()
}

func formatClick(snapID string, r *dom.ClickResult, waited time.Duration, navigation bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Successfully clicked element [%s]:\n", snapID)
	fmt.Fprintf(&b, "  Tag: <%s>\n", r.Tag)
	if r.Role != nil && *r.Role != "" {
		fmt.Fprintf(&b, "  Role: %s\n", *r.Role)
	}
	if r.Name != "" {
		fmt.Fprintf(&b, "  Name: %q\n", r.Name)
	}
	if r.Text != "" {
		fmt.Fprintf(&b, "  Text: %q\n", r.Text)
	}
	writeResolution(&b, r.Report)
	if navigation {
		fmt.Fprintf(&b, "\nWaited %dms for navigation to complete.", waited.Milliseconds())
	}
	return b.String()
}

func formatType(snapID string, r *dom.TypeResult, cleared bool, delay time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Successfully typed into element [%s]:\n", snapID)
	fmt.Fprintf(&b, "  Tag: <%s>\n", r.Tag)
	if r.InputType != "" {
		fmt.Fprintf(&b, "  Type: %s\n", r.InputType)
	}
	if r.Name != "" {
		fmt.Fprintf(&b, "  Name: %s\n", r.Name)
	}
	if r.Placeholder != "" {
		fmt.Fprintf(&b, "  Placeholder: %q\n", r.Placeholder)
	}
	if r.ValueBefore != "" {
		if cleared {
			fmt.Fprintf(&b, "  Cleared: %q → \"\"\n", r.ValueBefore)
		} else {
			fmt.Fprintf(&b, "  Previous value: %q\n", r.ValueBefore)
		}
	}
	fmt.Fprintf(&b, "  New value: %q (%d characters)\n", r.ValueAfter, r.Length)
	writeResolution(&b, r.Report)
	if r.Submitted {
		b.WriteString("\n✓ Pressed Enter key (form was submitted)")
	}
	if delay > 0 {
		fmt.Fprintf(&b, "\n✓ Typed with %dms delay between characters", delay.Milliseconds())
	}
	return b.String()
}

func formatSelect(snapID string, r *dom.SelectResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Successfully selected option in element [%s]:\n", snapID)
	b.WriteString("  Tag: <select>\n")
	if r.Name != "" {
		fmt.Fprintf(&b, "  Name: %s\n", r.Name)
	}
	if r.ID != "" {
		fmt.Fprintf(&b, "  ID: %s\n", r.ID)
	}

	b.WriteString("\nSelection:\n")
	fmt.Fprintf(&b, "  Method: %s\n", r.Method)
	fmt.Fprintf(&b, "  Selected: %q (value=%q, index=%d)\n", r.After.Text, r.After.Value, r.After.Index)
	if r.Before.Text != r.After.Text {
		fmt.Fprintf(&b, "  Previous: %q (value=%q, index=%d)\n", r.Before.Text, r.Before.Value, r.Before.Index)
	}
	writeResolution(&b, r.Report)

	fmt.Fprintf(&b, "\nDropdown has %d total options", r.TotalOptions)
	if len(r.Options) > 0 {
		b.WriteString(":\n")
		for _, opt := range r.Options {
			marker := "  "
			if opt.Index == r.After.Index {
				marker = "→ "
			}
			disabled := ""
			if opt.Disabled {
				disabled = " [DISABLED]"
			}
			fmt.Fprintf(&b, "%s[%d] %q (value=%q)%s\n", marker, opt.Index, opt.Text, opt.Value, disabled)
		}
		if more := r.TotalOptions - len(r.Options); more > 0 {
			fmt.Fprintf(&b, "  ... and %d more options\n", more)
		}
	}
	return b.String()
}

func formatTabs(tabs []*browser.Tab, activeID string) string {
	if len(tabs) == 0 {
		return "No tabs are currently open in this session."
	}
	entries := make([]string, len(tabs))
	for i, t := range tabs {
		title := t.Title
		if title == "" {
			title = "Untitled"
		}
		marker := ""
		if t.ID == activeID {
			marker = " (ACTIVE)"
		}
		entries[i] = fmt.Sprintf("%d. %s%s\n   Tab ID: %s\n   URL: %s\n   Created: %s",
			i+1, title, marker, t.ID, t.URL, t.CreatedAt.UTC().Format(time.RFC3339))
	}
	plural := "s"
	if len(tabs) == 1 {
		plural = ""
	}
	return fmt.Sprintf("Found %d open tab%s:\n\n%s\n\nUse browser_switch_tab to change the active tab or browser_close_tab to close a tab.",
		len(tabs), plural, strings.Join(entries, "\n\n"))
}

func formatInfo(tabID string, info *browser.PageInfo) string {
	state := "still loading"
	if info.ReadyState == "complete" {
		state = "fully loaded"
	}
	return fmt.Sprintf("Page Information\n\nTab ID: %s\nURL: %s\nTitle: %s\nReady State: %s\n\n"+
		"Viewport:\n  Dimensions: %dx%d\n  Scroll Position: (%g, %g)\n\nThe page is %s.",
		tabID, info.URL, info.Title, info.ReadyState,
		info.Viewport.Width, info.Viewport.Height, info.Scroll.X, info.Scroll.Y, state)
}

func formatReport(snapID string, r *dom.ResolutionReport) string {
	var b strings.Builder
	if r.Success {
		fmt.Fprintf(&b, "Element [%s] resolves on the live page:\n", snapID)
	} else {
		fmt.Fprintf(&b, "Element [%s] could not be resolved:\n", snapID)
	}
	fmt.Fprintf(&b, "  Strategy: %s\n", r.Strategy)
	fmt.Fprintf(&b, "  Confidence: %s\n", percent(r.Confidence))
	if r.Element != nil {
		fmt.Fprintf(&b, "  Tag: <%s>\n", r.Element.Tag)
		if r.Element.Role != nil && *r.Element.Role != "" {
			fmt.Fprintf(&b, "  Role: %s\n", *r.Element.Role)
		}
		if r.Element.Name != "" {
			fmt.Fprintf(&b, "  Name: %q\n", r.Element.Name)
		}
	}
	if r.CandidateCount > 0 {
		fmt.Fprintf(&b, "  Candidates scored: %d\n", r.CandidateCount)
	}
	if !r.Success {
		if r.Error != "" {
			fmt.Fprintf(&b, "  %s\n", r.Error)
		}
		b.WriteString("\nTake a fresh snapshot with browser_get_dom_snapshot before acting on this element.")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatRemap(r *snapshot.Remapping, fromID, toID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Element [%s] of %s:\n%s\n\n", r.From.SnapID, fromID, FormatElement(r.From))
	if r.To == nil {
		fmt.Fprintf(&b, "No element of %s matches with sufficient confidence (%d candidates scored).\n", toID, r.Match.CandidateCount)
		b.WriteString("The element may have been removed; inspect the newer snapshot's element list.")
		return b.String()
	}
	fmt.Fprintf(&b, "Matches element [%s] of %s:\n%s\n", r.To.SnapID, toID, FormatElement(*r.To))
	fmt.Fprintf(&b, "\n  Strategy: %s\n  Confidence: %s", r.Match.Strategy, percent(r.Match.Confidence))
	return b.String()
}
