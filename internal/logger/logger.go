package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Setup installs a tint handler on stderr as the default slog logger.
func Setup(level string) {
	slog.SetDefault(New(os.Stderr, level))
}

// New builds a colored slog logger writing to w. The MCP server uses stdout for
// protocol frames, so every handler here writes to an explicit sink.
func New(w io.Writer, level string) *slog.Logger {
	handler := tint.NewHandler(w, &tint.Options{
		Level:      ParseLevel(level),
		TimeFormat: time.TimeOnly,
	})
	return slog.New(handler)
}

func ParseLevel(level string) slog.Level {
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
