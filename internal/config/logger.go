package config

import (
	"io"
	"log/slog"
	"os"
)

func NewLogger(cfg *Config) *slog.Logger {
	var out io.Writer = os.Stdout
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			out = f
		}
	}

	opts := &slog.HandlerOptions{
		AddSource: cfg.IsDevelopment(),
		Level:     parseLevel(cfg.LogLevel),
	}

	var handler slog.Handler
	format := cfg.LogFormat
	if format == "" {
		if cfg.IsProduction() {
			format = "json"
		} else {
			format = "text"
		}
	}

	if format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
