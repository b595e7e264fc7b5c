package telemetry

import (
	"log/slog"
	"os"
	"strings"
)

// InitSlog sets the default logger. Verbose forces debug level, otherwise
// the level comes from the LOG_LEVEL env var (debug/info/warn/error).
func InitSlog(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	} else {
		switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}
