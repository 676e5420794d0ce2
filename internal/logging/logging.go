// Package logging sets up the slog logger shared by the testdesk server and CLI. Packages
// take a child logger from New tagged with their component name ("api", "mutation",
// "runs", "csvimport", ...).
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Init installs the default logger. Output goes to stderr unless a writer is passed;
// format "json" selects the JSON handler, anything else logfmt-style text.
func Init(level slog.Level, format string, w ...io.Writer) {
	out := io.Writer(os.Stderr)
	if len(w) > 0 && w[0] != nil {
		out = w[0]
	}
	slog.SetDefault(slog.New(handlerFor(format, out, level)))
}

func handlerFor(format string, out io.Writer, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(out, opts)
	}
	return slog.NewTextHandler(out, opts)
}

// ParseLevel reads logging.level from the config. Unknown values mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns the default logger tagged with component. Call it after Init; loggers taken
// earlier keep the previous handler.
func New(component string) *slog.Logger {
	return slog.Default().With(slog.String("component", component))
}
