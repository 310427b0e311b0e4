package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New returns a structured logger. JSON output is used in production or when
// format is "json"; text otherwise.
func New(env, level, format string) *slog.Logger {
	return newWithWriter(os.Stdout, env, level, format)
}

func newWithWriter(w io.Writer, env, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	useJSON := strings.EqualFold(format, "json") ||
		(format == "" && strings.EqualFold(env, "production"))
	if useJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
