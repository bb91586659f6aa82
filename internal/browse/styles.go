package browse

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

var (
	colorPrimary   = lipgloss.AdaptiveColor{Light: "#005B9A", Dark: "#4FA3FF"}
	colorText      = lipgloss.AdaptiveColor{Light: "#1F1F1F", Dark: "#E6E6E6"}
	colorSecondary = lipgloss.AdaptiveColor{Light: "#4A4A4A", Dark: "#9A9A9A"}
	colorSuccess   = lipgloss.AdaptiveColor{Light: "#0B7A5F", Dark: "#6EE7B7"}
	colorWarning   = lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#F59E0B"}
	colorMuted     = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#6F6F6F"}
	colorSelectBg  = lipgloss.AdaptiveColor{Light: "#DDEBFF", Dark: "#2B4C7E"}
	colorSelectFg  = lipgloss.AdaptiveColor{Light: "#000000", Dark: "#FFFFFF"}

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary).
			MarginBottom(1)

	pathStyle = lipgloss.NewStyle().
			Foreground(colorSecondary).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorMuted).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(colorMuted)

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorSelectFg).
			Background(colorSelectBg)

	dirStyle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	fileStyle = lipgloss.NewStyle().
			Foreground(colorText)

	sizeStyle = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Width(10).
			Align(lipgloss.Right)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			MarginTop(1)

	statusStyle = lipgloss.NewStyle().
			Foreground(colorSecondary)

	filterStyle = lipgloss.NewStyle().
			Foreground(colorWarning)
)

func formatSize(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

func formatCount(n int64) string {
	return humanize.Comma(n)
}
