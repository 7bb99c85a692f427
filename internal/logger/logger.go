package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
)

// Init sets the process-wide slog default: a colorized console handler in
// development, structured JSON in production, both tagged with the
// service name so C5/C10/C11's interleaved goroutine output stays
// attributable.
func Init(service string, env string, level slog.Level) *slog.Logger {
	var handler slog.Handler

	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     level,
			AddSource: true,
		}).WithAttrs([]slog.Attr{
			slog.String("service", service),
			slog.String("env", env),
		})
	} else {
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05",
		})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// ParseLevelFromEnv reads LOG_LEVEL, defaulting to INFO for an empty or
// unrecognized value.
func ParseLevelFromEnv() slog.Level {
	switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// L returns the process-wide default logger set by Init.
func L() *slog.Logger {
	return slog.Default()
}
