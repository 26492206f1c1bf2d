package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"squish/internal/optimizer"
	"squish/internal/processor"
	"squish/internal/tui"
)

var (
	optInPlace     bool
	optOutputDir   string
	optTools       []string
	optTimeout     time.Duration
	optWorkers     int
	optPlain       bool
	optPreserveICC bool
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize [flags] <path>",
	Short: "Optimize an image or every image under a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if optInPlace && optOutputDir != "" {
			return fmt.Errorf("--inplace cannot be used with --output")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("tools") {
			if err := cfg.Only(optTools); err != nil {
				return err
			}
		}
		if flags.Changed("timeout") {
			cfg.Timeout = optTimeout
		}
		if flags.Changed("workers") {
			cfg.Workers = optWorkers
		}
		if flags.Changed("preserve-icc") {
			cfg.PreserveICC = optPreserveICC
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		outputDir := optOutputDir
		if !optInPlace && outputDir == "" {
			outputDir = "squished"
		}
		if !optInPlace {
			if err := os.MkdirAll(outputDir, 0o755); err != nil {
				return err
			}
		}

		useTUI := !optPlain && !cfg.Debug && isTerminal(os.Stdout)
		logger := setupLogging(os.Stderr, cfg.Debug, useTUI)

		opt := optimizer.New(optimizer.Options{
			Registry: cfg.Registry(),
			TempDir:  cfg.TempDir,
			Timeout:  cfg.Timeout,
			Logger:   logger,
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		opts := processor.Options{
			InPlace:   optInPlace,
			OutputDir: outputDir,
			Tools:     cfg.Enabled(),
			Workers:   cfg.Workers,
		}

		var (
			summary processor.Summary
			reports []processor.Report
		)
		if useTUI {
			summary, reports, err = runWithProgress(ctx, path, opt, opts)
		} else {
			summary, reports, err = processor.Run(ctx, path, opt, opts, nil)
		}
		if err != nil {
			return err
		}

		printReports(reports, useTUI)
		fmt.Fprintln(os.Stdout, tui.RenderSummary(tui.SummaryRows(summary)))
		if optInPlace {
			fmt.Fprintln(os.Stdout, "In-place optimization complete.")
		} else {
			outPath := outputDir
			if abs, absErr := filepath.Abs(outputDir); absErr == nil {
				outPath = abs
			}
			fmt.Fprintf(os.Stdout, "Optimized files written to: %s\n", outPath)
		}

		if summary.Errors > 0 {
			return fmt.Errorf("%d file(s) failed", summary.Errors)
		}
		return nil
	},
}

func runWithProgress(ctx context.Context, path string, opt processor.Optimizer, opts processor.Options) (processor.Summary, []processor.Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates := make(chan processor.ProgressUpdate, 64)
	program := tea.NewProgram(tui.NewModel(updates))

	// The view exits on its own once updates is closed, or early on ctrl+c.
	// Either way the batch is stopped and its remaining updates discarded.
	uiDone := make(chan struct{})
	go func() {
		defer close(uiDone)
		_, _ = program.Run()
		cancel()
		for range updates {
		}
	}()

	summary, reports, err := processor.Run(ctx, path, opt, opts, updates)
	close(updates)
	<-uiDone
	return summary, reports, err
}

// printReports lists every file in plain mode, and only failures after the
// progress view.
func printReports(reports []processor.Report, errorsOnly bool) {
	for _, rep := range reports {
		if rep.Err != nil {
			fmt.Fprintf(os.Stdout, "%s %s\n", reportFileStyle.Render(rep.Display), reportErrorStyle.Render(rep.Err.Error()))
			continue
		}
		if errorsOnly {
			continue
		}

		res := rep.Result
		status := reportDimStyle.Render("kept original")
		if res.IsOptimized {
			status = reportSavedStyle.Render(fmt.Sprintf("-%.1f%%", res.DiffPercent))
		}
		line := fmt.Sprintf("%s %s -> %s %s",
			reportFileStyle.Render(rep.Display),
			humanize.IBytes(uint64(res.OriginalSize)),
			humanize.IBytes(uint64(max(res.OptimizedSize, 0))),
			status,
		)
		if stripped := rep.MetadataBefore - rep.MetadataAfter; stripped > 0 {
			line += reportDimStyle.Render(fmt.Sprintf("  metadata -%d", stripped))
		}
		fmt.Fprintln(os.Stdout, line)
	}
}

var (
	reportFileStyle  = lipgloss.NewStyle().Bold(true).Foreground(tui.ColorAccent)
	reportSavedStyle = lipgloss.NewStyle().Foreground(tui.ColorSuccess)
	reportErrorStyle = lipgloss.NewStyle().Foreground(tui.ColorError)
	reportDimStyle   = lipgloss.NewStyle().Foreground(tui.ColorDim)
)

func init() {
	optimizeCmd.Flags().BoolVarP(&optInPlace, "inplace", "i", false, "overwrite files in place")
	optimizeCmd.Flags().StringVarP(&optOutputDir, "output", "o", "", "destination folder for optimized copies")
	optimizeCmd.Flags().StringSliceVar(&optTools, "tools", nil, "enable only these tools (comma separated)")
	optimizeCmd.Flags().DurationVar(&optTimeout, "timeout", 0, "per-tool time limit, 0 for none")
	optimizeCmd.Flags().IntVar(&optWorkers, "workers", 0, "files optimized concurrently")
	optimizeCmd.Flags().BoolVar(&optPlain, "plain", false, "print one line per file instead of the progress view")
	optimizeCmd.Flags().BoolVar(&optPreserveICC, "preserve-icc", false, "keep ICC profiles when stripping metadata")

	rootCmd.AddCommand(optimizeCmd)
}
