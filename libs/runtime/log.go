package runtime

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger writes JSON logs to stdout. When LOG_FILE is set the same stream is
// also written to a rotated file.
func NewLogger(service string) *slog.Logger {
	var out io.Writer = os.Stdout
	if path := strings.TrimSpace(os.Getenv("LOG_FILE")); path != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		})
	}
	h := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: parseLevel(os.Getenv("LOG_LEVEL")),
	})
	return slog.New(h).With("service", service)
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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
