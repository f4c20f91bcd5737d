// Package logger provides the levelled diagnostic log shared by the vo
// client and window endpoints.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents a logging level
type Level int

const (
	// LevelDebug is the most verbose logging level
	LevelDebug Level = iota
	// LevelInfo logs informational messages
	LevelInfo
	// LevelWarn logs warnings
	LevelWarn
	// LevelError logs errors
	LevelError
	// LevelNone disables all logging
	LevelNone
)

// String returns string representation of log level
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a string into a Level. Unknown values map to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "none", "off":
		return LevelNone
	default:
		return LevelInfo
	}
}

// Options controls where a Logger writes.
type Options struct {
	Level Level
	// Path is the log file. Empty disables file output.
	Path string
	// Mirror receives a copy of every line that passes the level filter,
	// typically os.Stderr under --verbose.
	Mirror io.Writer
}

// Logger is a levelled line logger. Child loggers from WithPrefix share the
// parent's outputs.
type Logger struct {
	mu     *sync.RWMutex
	level  *Level
	out    *log.Logger
	file   *os.File
	prefix string
}

var (
	globalMu     sync.Mutex
	globalLogger *Logger
)

// Init installs the global logger. Calling it again replaces the previous
// global logger and closes its file.
func Init(opts Options) error {
	l, err := New(opts)
	if err != nil {
		return err
	}

	globalMu.Lock()
	prev := globalLogger
	globalLogger = l
	globalMu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	return nil
}

// New creates a Logger from opts.
func New(opts Options) (*Logger, error) {
	var writers []io.Writer
	var file *os.File

	if opts.Level != LevelNone && opts.Path != "" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		file = f
		writers = append(writers, f)
	}
	if opts.Level != LevelNone && opts.Mirror != nil {
		writers = append(writers, opts.Mirror)
	}

	level := opts.Level
	if len(writers) == 0 {
		level = LevelNone
	}

	return &Logger{
		mu:    &sync.RWMutex{},
		level: &level,
		out:   log.New(io.MultiWriter(writers...), "", 0),
		file:  file,
	}, nil
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	level := LevelNone
	return &Logger{
		mu:    &sync.RWMutex{},
		level: &level,
		out:   log.New(io.Discard, "", 0),
	}
}

// Global returns the global logger, or a discarding logger before Init.
func Global() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = Nop()
	}
	return globalLogger
}

// WithPrefix returns a child logger whose lines carry prefix.
func (l *Logger) WithPrefix(prefix string) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	newPrefix := prefix
	if l.prefix != "" {
		newPrefix = l.prefix + ":" + prefix
	}

	return &Logger{
		mu:     l.mu,
		level:  l.level,
		out:    l.out,
		file:   l.file,
		prefix: newPrefix,
	}
}

// SetLevel sets the logging level for this logger and all its children.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.level = level
}

// GetLevel returns the current logging level
func (l *Logger) GetLevel() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return *l.level
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if *l.level == LevelNone || level < *l.level {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	msg := fmt.Sprintf(format, args...)

	prefix := l.prefix
	if prefix != "" {
		prefix = "[" + prefix + "] "
	}

	l.out.Printf("%s [%s] %s%s", timestamp, level.String(), prefix, msg)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(LevelDebug, format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(LevelInfo, format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(LevelWarn, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(LevelError, format, args...)
}

// Close closes the underlying log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// Debug logs a debug message using the global logger
func Debug(format string, args ...interface{}) {
	Global().Debug(format, args...)
}

// Info logs an informational message using the global logger
func Info(format string, args ...interface{}) {
	Global().Info(format, args...)
}

// Warn logs a warning message using the global logger
func Warn(format string, args ...interface{}) {
	Global().Warn(format, args...)
}

// Error logs an error message using the global logger
func Error(format string, args ...interface{}) {
	Global().Error(format, args...)
}
