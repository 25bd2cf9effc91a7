// Package klog is the kernel log sink. Every memory-management component logs
// through L, which discards output until Init (or the KMEM_LOG environment
// variable) enables it.
package klog

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// L is the global logger instance. It's initialized to discard all output by default.
var L = defaultLogger()

// EnvVar enables debug logging to stderr when set to any non-empty value.
const EnvVar = "KMEM_LOG"

// Options configures the logger initialization.
type Options struct {
	Enabled bool       // If false, all logging is discarded
	Level   slog.Level // Minimum log level. Default: LevelInfo when enabled
	Format  string     // "text" (default) or "json"
	Writer  io.Writer  // Destination. Default: os.Stderr
}

func defaultLogger() *slog.Logger {
	if os.Getenv(EnvVar) != "" {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Init configures logging. If opts.Enabled is false, all log output is
// discarded unless KMEM_LOG is set.
func Init(opts Options) {
	if !opts.Enabled {
		L = defaultLogger()
		return
	}

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	level := opts.Level
	if level == 0 {
		level = slog.LevelInfo
	}

	hopts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(opts.Format, "json") {
		L = slog.New(slog.NewJSONHandler(w, hopts))
		return
	}
	L = slog.New(slog.NewTextHandler(w, hopts))
}

// Writer returns an io.Writer that emits each complete line written to it as
// one log record at the given level. Dumps written through it end up in the
// kernel log.
func Writer(level slog.Level, msg string) io.Writer {
	return &lineWriter{level: level, msg: msg}
}

type lineWriter struct {
	level slog.Level
	msg   string
	buf   bytes.Buffer
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		data := w.buf.Bytes()
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		line := string(data[:i])
		w.buf.Next(i + 1)
		L.Log(context.Background(), w.level, w.msg, "line", line)
	}
	return len(p), nil
}

// Debug logs a debug message with optional key-value pairs.
func Debug(msg string, args ...any) { L.Debug(msg, args...) }

// Info logs an info message with optional key-value pairs.
func Info(msg string, args ...any) { L.Info(msg, args...) }

// Warn logs a warning message with optional key-value pairs.
func Warn(msg string, args ...any) { L.Warn(msg, args...) }

// Error logs an error message with optional key-value pairs.
func Error(msg string, args ...any) { L.Error(msg, args...) }
