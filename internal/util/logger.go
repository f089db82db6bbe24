package util

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	defaultLogger *slog.Logger
	logFile       *os.File
	logLevel      = new(slog.LevelVar)
	once          sync.Once
	mu            sync.Mutex
)

// GetLogger returns the default logger instance.
func GetLogger() *slog.Logger {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if defaultLogger == nil {
			defaultLogger = newLogger(os.Stdout)
		}
	})
	return defaultLogger
}

func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
}

// ParseLevel parses a string log level.
func ParseLevel(s string) slog.Level {
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

// SetLevel sets the logging level.
func SetLevel(level string) {
	logLevel.Set(ParseLevel(level))
}

// InitLogger initializes the default logger with config. Output goes to
// stdout and, when filePath is set, appended to that file.
func InitLogger(level string, filePath string) {
	SetLevel(level)

	writers := []io.Writer{os.Stdout}
	var file *os.File
	if filePath != "" {
		if err := EnsureDir(filepath.Dir(filePath)); err == nil {
			f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err == nil {
				file = f
				writers = append(writers, f)
			}
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
	}
	logFile = file
	defaultLogger = newLogger(io.MultiWriter(writers...))
	slog.SetDefault(defaultLogger)
}

// SetLogger replaces the default logger. Tests use it to capture output.
func SetLogger(l *slog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = l
}

// CloseLogger closes the log file if open.
func CloseLogger() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

func logger() *slog.Logger {
	mu.Lock()
	l := defaultLogger
	mu.Unlock()
	if l == nil {
		return GetLogger()
	}
	return l
}

// Debug logs a debug message using the default logger.
func Debug(msg string, args ...any) {
	logger().Log(context.Background(), slog.LevelDebug, msg, args...)
}

// Info logs an info message using the default logger.
func Info(msg string, args ...any) {
	logger().Log(context.Background(), slog.LevelInfo, msg, args...)
}

// Warn logs a warning message using the default logger.
func Warn(msg string, args ...any) {
	logger().Log(context.Background(), slog.LevelWarn, msg, args...)
}

// Error logs an error message using the default logger.
func Error(msg string, args ...any) {
	logger().Log(context.Background(), slog.LevelError, msg, args...)
}
