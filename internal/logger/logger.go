package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

var log *slog.Logger

// Init installs a JSON logger on stdout. LOG_LEVEL picks the level.
func Init() {
	opts := &slog.HandlerOptions{Level: parseLevel(os.Getenv("LOG_LEVEL"))}
	log = New(NewJSONHandler(os.Stdout, opts))
}

func New(h slog.Handler) *slog.Logger {
	return slog.New(h)
}

func NewJSONHandler(w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	return slog.NewJSONHandler(w, opts)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

func get() *slog.Logger {
	if log == nil {
		return slog.Default()
	}
	return log
}

func Info(msg string, args ...any) {
	get().Info(msg, args...)
}

func Infof(format string, v ...any) {
	get().Info(fmt.Sprintf(format, v...))
}

func Warn(msg string, args ...any) {
	get().Warn(msg, args...)
}

func Warnf(format string, v ...any) {
	get().Warn(fmt.Sprintf(format, v...))
}

func Error(msg string, args ...any) {
	get().Error(msg, args...)
}

func Errorf(format string, v ...any) {
	get().Error(fmt.Sprintf(format, v...))
}

func Debug(msg string, args ...any) {
	get().Debug(msg, args...)
}

func Debugf(format string, v ...any) {
	get().Debug(fmt.Sprintf(format, v...))
}

func Fatalf(format string, v ...any) {
	get().Error(fmt.Sprintf(format, v...))
	os.Exit(1)
}

func WithError(err error) *slog.Logger {
	return get().With("error", err)
}

func WithFields(fields map[string]interface{}) *slog.Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return get().With(args...)
}
