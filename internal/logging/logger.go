// Package logging provides structured logging for npx-scripts.
// It wraps log/slog with level parsing, optional log files with retention,
// and helpers for attaching script and module context.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents log severity levels.
type Level int

const (
	// LevelDebug is for detailed debugging information.
	LevelDebug Level = iota
	// LevelInfo is for informational messages.
	LevelInfo
	// LevelWarn is for warning messages.
	LevelWarn
	// LevelError is for error messages.
	LevelError
)

// String returns the string representation of the level.
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
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a level name such as "debug" or "WARN".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// filePrefix names every log file written by this package.
const filePrefix = "npx-scripts_"

// Config configures the logger.
type Config struct {
	// Level is the minimum log level to output.
	Level Level
	// LogDir is the directory for log files. Empty disables file logging.
	LogDir string
	// MaxLogFiles is the maximum number of log files to keep.
	MaxLogFiles int
	// MaxLogAge is the maximum age of log files before cleanup.
	MaxLogAge time.Duration
	// Console mirrors log output to stderr.
	Console bool
	// JSONFormat uses JSON output instead of key=value text.
	JSONFormat bool
}

// DefaultConfig returns default logging configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:       LevelInfo,
		MaxLogFiles: 10,
		MaxLogAge:   7 * 24 * time.Hour,
	}
}

// Logger is a structured logger for npx-scripts.
type Logger struct {
	slog    *slog.Logger
	config  *Config
	logFile *os.File
	logPath string
	mu      sync.Mutex
}

// New creates a new logger with the given configuration. When LogDir is set
// a timestamped log file is created in it.
func New(config *Config) (*Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	logger := &Logger{config: config}

	var writers []io.Writer
	if config.LogDir != "" {
		f, path, err := openLogFile(config.LogDir)
		if err != nil {
			return nil, err
		}
		logger.logFile = f
		logger.logPath = path
		writers = append(writers, f)
	}
	if config.Console {
		writers = append(writers, os.Stderr)
	}
	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	logger.slog = slog.New(newHandler(io.MultiWriter(writers...), config))

	if logger.logFile != nil {
		go func() { _ = logger.Cleanup() }()
	}

	return logger, nil
}

// NewWithWriter creates a logger that writes to w only. Useful in tests.
func NewWithWriter(w io.Writer, level Level) *Logger {
	config := DefaultConfig()
	config.Level = level
	return &Logger{
		slog:   slog.New(newHandler(w, config)),
		config: config,
	}
}

// NewNoop creates a logger that discards all output.
func NewNoop() *Logger {
	return NewWithWriter(io.Discard, LevelError)
}

func newHandler(w io.Writer, config *Config) slog.Handler {
	opts := &slog.HandlerOptions{Level: config.Level.toSlogLevel()}
	if config.JSONFormat {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func openLogFile(dir string) (*os.File, string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, "", fmt.Errorf("failed to create log directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s%s.log", filePrefix, time.Now().Format("20060102_150405")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create log file: %w", err)
	}
	return f, path, nil
}

// LogPath returns the path to the current log file, or "" without one.
func (l *Logger) LogPath() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.logPath
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.logFile != nil {
		err := l.logFile.Close()
		l.logFile = nil
		return err
	}
	return nil
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...any) {
	l.slog.Debug(msg, args...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, args ...any) {
	l.slog.Info(msg, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...any) {
	l.slog.Warn(msg, args...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, args ...any) {
	l.slog.Error(msg, args...)
}

// With returns a new logger with the given attributes added.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slog:    l.slog.With(args...),
		config:  l.config,
		logFile: l.logFile,
		logPath: l.logPath,
	}
}

type contextKey string

const (
	// ContextKeyFile is the context key for the script being processed.
	ContextKeyFile contextKey = "file"
	// ContextKeyModule is the context key for the declared module.
	ContextKeyModule contextKey = "module"
)

// WithFile adds the script path to the context.
func WithFile(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, ContextKeyFile, path)
}

// WithModule adds the declared module to the context.
func WithModule(ctx context.Context, module string) context.Context {
	return context.WithValue(ctx, ContextKeyModule, module)
}

// WithContext returns a logger carrying the file and module stored in ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	next := l.slog
	if file, ok := ctx.Value(ContextKeyFile).(string); ok && file != "" {
		next = next.With("file", file)
	}
	if module, ok := ctx.Value(ContextKeyModule).(string); ok && module != "" {
		next = next.With("module", module)
	}
	return &Logger{
		slog:    next,
		config:  l.config,
		logFile: l.logFile,
		logPath: l.logPath,
	}
}

// Writer returns an io.Writer that logs each line at the given level.
// It is used to capture install command output.
func (l *Logger) Writer(level Level) *LineWriter {
	return &LineWriter{logger: l, level: level}
}

// LineWriter adapts the logger to io.Writer, one record per line.
type LineWriter struct {
	logger *Logger
	level  Level
	mu     sync.Mutex
	buf    []byte
}

// Write implements io.Writer, logging each complete line.
func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		idx := indexOf(w.buf, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimRight(string(w.buf[:idx]), "\r")
		w.buf = w.buf[idx+1:]
		w.emit(line)
	}
	return len(p), nil
}

// Flush logs any buffered partial line.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		line := string(w.buf)
		w.buf = nil
		w.emit(line)
	}
}

func (w *LineWriter) emit(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	switch w.level {
	case LevelDebug:
		w.logger.Debug(line)
	case LevelInfo:
		w.logger.Info(line)
	case LevelWarn:
		w.logger.Warn(line)
	case LevelError:
		w.logger.Error(line)
	}
}

func indexOf(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// Cleanup removes old log files based on MaxLogFiles and MaxLogAge.
func (l *Logger) Cleanup() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.config.LogDir == "" {
		return nil
	}

	entries, err := os.ReadDir(l.config.LogDir)
	if err != nil {
		return fmt.Errorf("failed to read log directory: %w", err)
	}

	type logFileInfo struct {
		path    string
		modTime time.Time
	}
	var logFiles []logFileInfo

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, ".log") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		logFiles = append(logFiles, logFileInfo{
			path:    filepath.Join(l.config.LogDir, name),
			modTime: info.ModTime(),
		})
	}

	// Newest first
	sort.Slice(logFiles, func(i, j int) bool {
		return logFiles[i].modTime.After(logFiles[j].modTime)
	})

	now := time.Now()
	var removed int

	for i, lf := range logFiles {
		if lf.path == l.logPath {
			continue
		}
		tooMany := l.config.MaxLogFiles > 0 && i >= l.config.MaxLogFiles
		tooOld := l.config.MaxLogAge > 0 && now.Sub(lf.modTime) > l.config.MaxLogAge
		if tooMany || tooOld {
			if err := os.Remove(lf.path); err == nil {
				removed++
			}
		}
	}

	if removed > 0 {
		l.slog.Debug("cleaned up old log files", "count", removed)
	}

	return nil
}
