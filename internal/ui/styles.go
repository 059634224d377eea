package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	ColorPrimary = lipgloss.Color("39")  // Cyan
	ColorSuccess = lipgloss.Color("82")  // Green
	ColorWarning = lipgloss.Color("214") // Orange
	ColorMuted   = lipgloss.Color("245") // Gray
)

var (
	Bold    = lipgloss.NewStyle().Bold(true)
	Dim     = lipgloss.NewStyle().Foreground(ColorMuted)
	Header  = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)
	Success = lipgloss.NewStyle().Foreground(ColorSuccess)
	Warning = lipgloss.NewStyle().Foreground(ColorWarning)

	ResultID    = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)
	ResultScore = lipgloss.NewStyle().Foreground(ColorSuccess)
	MetaKey     = lipgloss.NewStyle().Foreground(ColorMuted)
	Divider     = lipgloss.NewStyle().Foreground(ColorMuted)
)

// HorizontalRule returns a styled divider of the given width.
func HorizontalRule(width int) string {
	return Divider.Render(strings.Repeat("─", width))
}

// FormatScore renders a similarity score with four decimals.
func FormatScore(score float64) string {
	return ResultScore.Render(fmt.Sprintf("%.4f", score))
}

// FormatResult renders one query hit as "rank. id  score".
func FormatResult(rank int, id string, score float64) string {
	return fmt.Sprintf("%s %s  %s", Dim.Render(fmt.Sprintf("%d.", rank)), ResultID.Render(id), FormatScore(score))
}

// FormatMetadata renders metadata as indented key=value lines, sorted by key.
func FormatMetadata(metadata map[string]any) string {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "   %s %v\n", MetaKey.Render(k+":"), metadata[k])
	}
	return sb.String()
}
