package cmd

import (
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// setupLogging installs a tint console handler as the default logger.
// Quiet mode is used while the progress view owns the terminal.
func setupLogging(w io.Writer, debug, quiet bool) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case quiet:
		level = slog.LevelError + 4
	case debug:
		level = slog.LevelDebug
	}

	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !term.IsTerminal(int(f.Fd()))
	}

	logger := slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    noColor,
	}))
	slog.SetDefault(logger)
	return logger
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
