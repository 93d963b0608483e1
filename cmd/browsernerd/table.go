package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	tableTitle  = lipgloss.NewStyle().Bold(true)
	tableHeader = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	tableCell   = lipgloss.NewStyle().Padding(0, 1)
	tableRule   = lipgloss.NewStyle().Faint(true)
)

// simpleTable renders static rows with columns sized to their widest cell.
type simpleTable struct {
	title   string
	headers []string
	rows    [][]string
}

func newSimpleTable(title string, headers ...string) *simpleTable {
	return &simpleTable{title: title, headers: headers}
}

func (t *simpleTable) addRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// view returns "" for a table without rows.
func (t *simpleTable) view() string {
	if len(t.rows) == 0 {
		return ""
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(cell))
			}
		}
	}
	// Width includes the padding.
	total := len(widths) - 1
	for i := range widths {
		widths[i] += 2
		total += widths[i]
	}

	var sb strings.Builder
	if t.title != "" {
		sb.WriteString(tableTitle.Render(t.title))
		sb.WriteString("\n")
	}
	t.line(&sb, tableHeader, widths, t.headers)
	sb.WriteString(tableRule.Render(strings.Repeat("-", total)))
	sb.WriteString("\n")
	for _, row := range t.rows {
		t.line(&sb, tableCell, widths, row)
	}
	return sb.String()
}

func (t *simpleTable) line(sb *strings.Builder, style lipgloss.Style, widths []int, cells []string) {
	for i, w := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		if i > 0 {
			sb.WriteString(tableRule.Render("|"))
		}
		sb.WriteString(style.Width(w).Render(cell))
	}
	sb.WriteString("\n")
}
