// Package logging provides categorized file-based logging for ticketsmith.
// Logs are written to <workspace>/.ticketsmith/logs/ with one file per
// category per day. When debug mode is off the whole package is a no-op.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBreakdown Category = "breakdown" // orchestrator stages
	CategoryParser    Category = "parser"    // record extraction, sanitizing
	CategoryFormatFix Category = "formatfix" // reformat retry loop
	CategoryRegistry  Category = "registry"  // ID assignment, dependency resolution
	CategoryAPI       Category = "api"       // generator calls
	CategoryRevision  Category = "revision"  // revision lifecycle
	CategoryStore     Category = "store"     // persistence operations
	CategoryTracker   Category = "tracker"   // issue tracker calls
)

// Log levels.
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Options controls logger behavior. Zero value means disabled.
type Options struct {
	DebugMode bool
	Level     string // debug, info, warn, error
}

// Logger wraps a standard logger with category and file output.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	enabled   bool
	logLevel  = LevelInfo
)

// Initialize sets up the logging directory. Call once at startup.
func Initialize(workspace string, opts Options) error {
	if !opts.DebugMode {
		enabled = false
		return nil
	}

	logsDir = filepath.Join(workspace, ".ticketsmith", "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	switch opts.Level {
	case "debug":
		logLevel = LevelDebug
	case "info", "":
		logLevel = LevelInfo
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}
	enabled = true
	return nil
}

// Get returns (or creates) the logger for the given category.
// Returns a no-op logger when logging is disabled.
func Get(category Category) *Logger {
	if !enabled || logsDir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(logsDir, fmt.Sprintf("%s_%s.log", date, category))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] warning: could not open %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...any) {
	if l.logger == nil || logLevel > LevelDebug {
		return
	}
	l.logger.Printf("[DEBUG] %s", fmt.Sprintf(format, args...))
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...any) {
	if l.logger == nil || logLevel > LevelInfo {
		return
	}
	l.logger.Printf("[INFO] %s", fmt.Sprintf(format, args...))
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...any) {
	if l.logger == nil || logLevel > LevelWarn {
		return
	}
	l.logger.Printf("[WARN] %s", fmt.Sprintf(format, args...))
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...any) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[ERROR] %s", fmt.Sprintf(format, args...))
}

// CloseAll closes all open log files. Call at shutdown.
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// Convenience functions. No-ops when the category file is unavailable.

// Breakdown logs to the breakdown category.
func Breakdown(format string, args ...any) { Get(CategoryBreakdown).Info(format, args...) }

// BreakdownDebug logs debug to the breakdown category.
func BreakdownDebug(format string, args ...any) { Get(CategoryBreakdown).Debug(format, args...) }

// BreakdownWarn logs warning to the breakdown category.
func BreakdownWarn(format string, args ...any) { Get(CategoryBreakdown).Warn(format, args...) }

// Parser logs to the parser category.
func Parser(format string, args ...any) { Get(CategoryParser).Info(format, args...) }

// ParserDebug logs debug to the parser category.
func ParserDebug(format string, args ...any) { Get(CategoryParser).Debug(format, args...) }

// API logs to the api category.
func API(format string, args ...any) { Get(CategoryAPI).Info(format, args...) }

// APIDebug logs debug to the api category.
func APIDebug(format string, args ...any) { Get(CategoryAPI).Debug(format, args...) }

// Registry logs to the registry category.
func Registry(format string, args ...any) { Get(CategoryRegistry).Info(format, args...) }

// RegistryWarn logs warning to the registry category.
func RegistryWarn(format string, args ...any) { Get(CategoryRegistry).Warn(format, args...) }

// Revision logs to the revision category.
func Revision(format string, args ...any) { Get(CategoryRevision).Info(format, args...) }

// Store logs to the store category.
func Store(format string, args ...any) { Get(CategoryStore).Info(format, args...) }

// Tracker logs to the tracker category.
func Tracker(format string, args ...any) { Get(CategoryTracker).Info(format, args...) }

// Timer helps measure operation duration.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}
