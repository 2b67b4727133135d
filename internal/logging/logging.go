// Package logging configures the process-wide structured logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// Setup installs a tinted slog handler as the default logger. Color is
// only used when writing to a terminal.
func Setup(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	SetupWriter(os.Stderr, level, isatty.IsTerminal(os.Stderr.Fd()))
}

// SetupWriter installs the handler on an arbitrary writer; used by the
// decoy responder to tee session logs into a file.
func SetupWriter(w io.Writer, level slog.Level, color bool) {
	handler := tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
		NoColor:    !color,
	})
	slog.SetDefault(slog.New(handler))
}
