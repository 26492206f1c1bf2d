package tui

import "github.com/charmbracelet/lipgloss"

// Adaptive so the summary stays readable on light terminals.
var (
	ColorInk       = lipgloss.AdaptiveColor{Light: "#2E3440", Dark: "#E5E9F0"}
	ColorDim       = lipgloss.AdaptiveColor{Light: "#7A8291", Dark: "#7A8291"}
	ColorAccent    = lipgloss.AdaptiveColor{Light: "#5E81AC", Dark: "#88C0D0"}
	ColorAccentAlt = lipgloss.AdaptiveColor{Light: "#4C566A", Dark: "#81A1C1"}
	ColorSuccess   = lipgloss.AdaptiveColor{Light: "#4F7A3A", Dark: "#A3BE8C"}
	ColorWarn      = lipgloss.AdaptiveColor{Light: "#9A7420", Dark: "#EBCB8B"}
	ColorError     = lipgloss.AdaptiveColor{Light: "#A5404B", Dark: "#BF616A"}
)
