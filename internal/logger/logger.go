package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	slogmulti "github.com/samber/slog-multi"

	"videocounter/internal/config"
)

// Log files kept under the log directory, one per level.
const (
	InfoFile    = "info.log"
	WarningFile = "warning.log"
	ErrorFile   = "error.log"
)

// Logger provides leveled logging (info/warning/error) to files and stdout/stderr.
type Logger struct {
	infoLog    *slog.Logger
	warningLog *slog.Logger
	errorLog   *slog.Logger
	logDir     string
	files      []*os.File
	mu         *sync.Mutex
}

// NewLogger creates a Logger and ensures the log directory exists.
func NewLogger(cfg *config.Config) (*Logger, error) {
	if err := os.MkdirAll(cfg.LogDirectory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	l := &Logger{
		logDir: cfg.LogDirectory,
		mu:     &sync.Mutex{},
	}
	if err := l.setupLoggers(parseLevel(cfg.LogLevel)); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

// NewNop returns a Logger that discards everything.
func NewNop() *Logger {
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &Logger{
		infoLog:    discard,
		warningLog: discard,
		errorLog:   discard,
		mu:         &sync.Mutex{},
	}
}

// setupLoggers initializes console and file handlers for every level.
func (l *Logger) setupLoggers(minLevel slog.Level) error {
	infoFile, err := l.openLogFile(InfoFile)
	if err != nil {
		return err
	}
	warningFile, err := l.openLogFile(WarningFile)
	if err != nil {
		return err
	}
	errorFile, err := l.openLogFile(ErrorFile)
	if err != nil {
		return err
	}

	console := func(w io.Writer) slog.Handler {
		return tint.NewHandler(w, &tint.Options{Level: minLevel, TimeFormat: time.DateTime, AddSource: false})
	}
	file := func(w io.Writer) slog.Handler {
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: minLevel})
	}

	l.infoLog = slog.New(slogmulti.Fanout(console(os.Stdout), file(infoFile)))
	l.warningLog = slog.New(slogmulti.Fanout(console(os.Stdout), file(warningFile)))
	l.errorLog = slog.New(slogmulti.Fanout(console(os.Stderr), file(errorFile)))
	return nil
}

// openLogFile opens or creates a log file for appending.
func (l *Logger) openLogFile(name string) (*os.File, error) {
	path := filepath.Join(l.logDir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	l.files = append(l.files, f)
	return f, nil
}

// With returns a Logger that adds the given attributes to every entry.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		infoLog:    l.infoLog.With(args...),
		warningLog: l.warningLog.With(args...),
		errorLog:   l.errorLog.With(args...),
		logDir:     l.logDir,
		mu:         l.mu,
	}
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.infoLog.Info(fmt.Sprintf(format, v...))
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.warningLog.Warn(fmt.Sprintf(format, v...))
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.errorLog.Error(fmt.Sprintf(format, v...))
}

// Dir returns the directory holding the log files, empty for NewNop loggers.
func (l *Logger) Dir() string {
	return l.logDir
}

// CleanLogs truncates the specified log file.
func (l *Logger) CleanLogs(fileName string) error {
	if l.logDir == "" {
		return nil
	}
	switch fileName {
	case InfoFile, WarningFile, ErrorFile:
	default:
		return fmt.Errorf("unknown log file %q", fileName)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.Truncate(filepath.Join(l.logDir, fileName), 0); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", fileName, err)
	}
	l.Info("File content has been cleared: %s", fileName)
	return nil
}

// Close releases the log files.
func (l *Logger) Close() error {
	var errs []error
	for _, f := range l.files {
		errs = append(errs, f.Close())
	}
	l.files = nil
	return errors.Join(errs...)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
