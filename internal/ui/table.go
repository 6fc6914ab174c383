package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// RenderTable renders rows under a header row with a rounded border
func RenderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(MutedColor)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			return TableCellStyle
		}).
		Render()
}

// RenderDetails renders key/value lines the way result boxes do, without a border
func RenderDetails(fields ...Field) string {
	var out string
	for i, f := range fields {
		if i > 0 {
			out += "\n"
		}
		out += ResultKeyStyle.Render("  "+f.Key+":") + " " + ResultValueStyle.Render(f.Value)
	}
	return out
}
