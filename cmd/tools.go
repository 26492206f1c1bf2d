package cmd

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"squish/internal/optimizer"
	"squish/internal/tui"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Show the optimizer chain for each file type",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		resolve := cfg.Resolver()

		for i, ext := range optimizer.Extensions() {
			if i > 0 {
				fmt.Fprintln(os.Stdout)
			}
			fmt.Fprintln(os.Stdout, toolsExtStyle.Render(ext))
			for n, name := range optimizer.Chain(ext) {
				state := toolsOffStyle.Render("off")
				if cfg.Tools[name] {
					state = toolsOnStyle.Render("on ")
				}
				fmt.Fprintf(os.Stdout, "  %d. %s %-16s %s\n", n+1, state, name, locate(name, resolve))
			}
		}
		return nil
	},
}

func locate(name string, resolve optimizer.Resolver) string {
	if name == optimizer.Strip {
		return toolsDimStyle.Render("built-in")
	}
	bin := resolve(name)
	found, err := exec.LookPath(bin)
	if err != nil {
		return toolsMissingStyle.Render(bin + " (not found)")
	}
	return toolsDimStyle.Render(found)
}

var (
	toolsExtStyle     = lipgloss.NewStyle().Bold(true).Foreground(tui.ColorAccent)
	toolsOnStyle      = lipgloss.NewStyle().Foreground(tui.ColorSuccess)
	toolsOffStyle     = lipgloss.NewStyle().Foreground(tui.ColorDim)
	toolsDimStyle     = lipgloss.NewStyle().Foreground(tui.ColorDim)
	toolsMissingStyle = lipgloss.NewStyle().Foreground(tui.ColorWarn)
)

func init() {
	rootCmd.AddCommand(toolsCmd)
}
