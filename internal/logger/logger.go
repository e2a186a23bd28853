package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var defaultLogger *slog.Logger

// Init replaces the default logger with one at the given level. Records go
// to stderr so command output on stdout stays machine readable.
func Init(level string) {
	defaultLogger = New(os.Stderr, level)
	slog.SetDefault(defaultLogger)
}

// New builds a text logger writing to w at the given level.
func New(w io.Writer, level string) *slog.Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return slog.New(h)
}

// ParseLevel maps DEBUG, INFO, WARN and ERROR to slog levels, defaulting to INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
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

func init() {
	defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, nil))
}

// Logger returns the default logger instance.
func Logger() *slog.Logger {
	return defaultLogger
}

// Component returns the default logger tagged with a component name.
func Component(name string) *slog.Logger {
	return defaultLogger.With("component", name)
}

// SetLogger allows replacing the default logger (for tests or customization).
func SetLogger(l *slog.Logger) {
	defaultLogger = l
}
