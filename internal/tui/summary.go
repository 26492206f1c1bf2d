package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"squish/internal/processor"
)

type SummaryRow struct {
	Label string
	Value string
}

// SummaryRows turns a batch summary into the rows printed after a run.
func SummaryRows(s processor.Summary) []SummaryRow {
	percent := 0.0
	if s.BytesBefore > 0 {
		percent = 100 * float64(s.BytesSaved) / float64(s.BytesBefore)
	}
	return []SummaryRow{
		{Label: "Files processed", Value: fmt.Sprintf("%d", s.Processed)},
		{Label: "Files optimized", Value: fmt.Sprintf("%d", s.Optimized)},
		{Label: "Errors", Value: fmt.Sprintf("%d", s.Errors)},
		{Label: "Space saved", Value: fmt.Sprintf("%s (%.1f%%)", humanize.IBytes(uint64(max(s.BytesSaved, 0))), percent)},
	}
}

func RenderSummary(rows []SummaryRow) string {
	labelWidth := 0
	valueWidth := 0
	for _, row := range rows {
		labelWidth = max(labelWidth, lipgloss.Width(row.Label))
		valueWidth = max(valueWidth, lipgloss.Width(row.Value))
	}

	hline := dimStyle.Render(strings.Repeat("-", labelWidth+valueWidth+3))
	lines := []string{hline}
	for _, row := range rows {
		label := labelStyle.Width(labelWidth).Render(row.Label)
		value := valueStyle.Width(valueWidth).Align(lipgloss.Right).Render(row.Value)
		lines = append(lines, label+dimStyle.Render(" | ")+value)
	}
	lines = append(lines, hline)

	return strings.Join(lines, "\n")
}

var valueStyle = lipgloss.NewStyle().Foreground(ColorInk).Bold(true)
