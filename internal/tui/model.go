package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"squish/internal/processor"
)

type Model struct {
	updates    <-chan processor.ProgressUpdate
	started    time.Time
	width      int
	total      int
	processed  int
	optimized  int
	errors     int
	bytesSaved int64
	current    string
	quitting   bool
}

type doneMsg struct{}

type updateMsg processor.ProgressUpdate

func NewModel(updates <-chan processor.ProgressUpdate) Model {
	return Model{updates: updates, started: time.Now()}
}

func (m Model) Init() tea.Cmd {
	return listenForUpdates(m.updates)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case updateMsg:
		m.total += msg.TotalDelta
		m.processed += msg.ProcessedDelta + msg.ErrorDelta
		m.optimized += msg.OptimizedDelta
		m.errors += msg.ErrorDelta
		m.bytesSaved += msg.BytesSavedDelta
		if msg.File != "" {
			m.current = msg.File
		}
		return m, listenForUpdates(m.updates)
	case doneMsg:
		m.quitting = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	default:
		return m, nil
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	barWidth := 40
	if m.width > 0 {
		barWidth = int(math.Min(60, float64(m.width-10)))
		if barWidth < 20 {
			barWidth = 20
		}
	}

	ratio := 0.0
	if m.total > 0 {
		ratio = math.Min(1, float64(m.processed)/float64(m.total))
	}

	elapsed := time.Since(m.started).Round(time.Millisecond)

	lines := []string{
		titleStyle.Render("squish"),
		labelStyle.Render(fmt.Sprintf("Files: %d/%d", m.processed, m.total)) + dimStyle.Render(fmt.Sprintf("  errors:%d", m.errors)),
		labelStyle.Render(fmt.Sprintf("Optimized: %d", m.optimized)),
		savedStyle.Render(fmt.Sprintf("Saved: %s", humanize.IBytes(uint64(max(m.bytesSaved, 0))))),
		dimStyle.Render(fmt.Sprintf("Elapsed: %s  %s", elapsed, m.current)),
		barStyle.Render(renderBar(barWidth, ratio)),
	}

	return strings.Join(lines, "\n")
}

func listenForUpdates(updates <-chan processor.ProgressUpdate) tea.Cmd {
	return func() tea.Msg {
		update, ok := <-updates
		if !ok {
			return doneMsg{}
		}
		return updateMsg(update)
	}
}

func renderBar(width int, ratio float64) string {
	filled := int(math.Round(ratio * float64(width)))
	filled = min(max(filled, 0), width)
	return "[" + strings.Repeat("=", filled) + strings.Repeat(" ", width-filled) + "]"
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	labelStyle = lipgloss.NewStyle().Foreground(ColorInk)
	savedStyle = lipgloss.NewStyle().Foreground(ColorSuccess)
	barStyle   = lipgloss.NewStyle().Foreground(ColorAccentAlt)
	dimStyle   = lipgloss.NewStyle().Foreground(ColorDim)
)
