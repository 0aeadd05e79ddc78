package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

var (
	level  = new(slog.LevelVar)
	logger = New(os.Stderr, false)
)

// New builds a tint handler writing to w at the shared level.
func New(w io.Writer, noColor bool) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		NoColor:    noColor,
	}))
}

// Logger returns the process logger.
func Logger() *slog.Logger {
	return logger
}

// Setup makes the process logger the slog default at the given level.
func Setup(levelName string) *slog.Logger {
	SetLevel(levelName)
	slog.SetDefault(logger)
	return logger
}

// SetLevel accepts debug, info, warn or error; anything else means info.
func SetLevel(name string) {
	level.Set(ParseLevel(name))
}

func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
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
