// logger/logger.go
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

type Logger struct {
	debugLogger        *log.Logger
	infoLogger         *log.Logger
	warnLogger         *log.Logger
	errorLogger        *log.Logger
	debugLoggerNoColor *log.Logger
	infoLoggerNoColor  *log.Logger
	warnLoggerNoColor  *log.Logger
	errorLoggerNoColor *log.Logger
	file               *os.File
	consoleOutput      io.Writer
	fileOutput         io.Writer
	minLevel           LogLevel
}

var (
	defaultLogger *Logger
	once          sync.Once
	mu            sync.Mutex
)

// ensureInitialized creates a default logger if one doesn't exist
func ensureInitialized() {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if defaultLogger != nil {
			return
		}
		defaultLogger = &Logger{
			consoleOutput: os.Stdout,
			minLevel:      INFO,
		}
		defaultLogger.setupLoggers()
	})
}

// Init initializes the logger with optional file and console output.
// If filename is empty, logs only to console.
// If console is false, logs only to file.
func Init(filename string, console bool) error {
	mu.Lock()
	defer mu.Unlock()

	level := INFO
	if defaultLogger != nil {
		level = defaultLogger.minLevel
		if defaultLogger.file != nil {
			defaultLogger.file.Close()
		}
	}

	next := &Logger{minLevel: level}

	if filename != "" {
		file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		next.file = file
		next.fileOutput = file
	}

	if console {
		next.consoleOutput = os.Stdout
	}

	if next.fileOutput == nil && next.consoleOutput == nil {
		return fmt.Errorf("no output destination specified")
	}

	next.setupLoggers()
	defaultLogger = next
	once.Do(func() {})
	return nil
}

// SetOutput sends console output to w, used by tests to silence or capture logs.
func SetOutput(w io.Writer) {
	ensureInitialized()
	mu.Lock()
	defer mu.Unlock()
	defaultLogger.consoleOutput = w
	defaultLogger.setupLoggers()
}

// SetLevel sets the minimum log level (DEBUG, INFO, WARN, ERROR)
// Messages below this level will not be logged
func SetLevel(level LogLevel) {
	ensureInitialized()
	mu.Lock()
	defer mu.Unlock()
	defaultLogger.minLevel = level
}

// ParseLevel maps LOG_LEVEL values to a LogLevel. Unknown names yield INFO.
func ParseLevel(name string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

func (l *Logger) setupLoggers() {
	flags := log.Ldate | log.Ltime | log.Lshortfile

	// Setup colored loggers for console
	if l.consoleOutput != nil {
		l.debugLogger = log.New(l.consoleOutput, colorGray+"[DEBUG] "+colorReset, flags)
		l.infoLogger = log.New(l.consoleOutput, colorReset+"[INFO]  "+colorReset, flags)
		l.warnLogger = log.New(l.consoleOutput, colorYellow+"[WARN]  "+colorReset, flags)
		l.errorLogger = log.New(l.consoleOutput, colorRed+"[ERROR] "+colorReset, flags)
	}

	// Setup non-colored loggers for file
	if l.fileOutput != nil {
		l.debugLoggerNoColor = log.New(l.fileOutput, "[DEBUG] ", flags)
		l.infoLoggerNoColor = log.New(l.fileOutput, "[INFO]  ", flags)
		l.warnLoggerNoColor = log.New(l.fileOutput, "[WARN]  ", flags)
		l.errorLoggerNoColor = log.New(l.fileOutput, "[ERROR] ", flags)
	}
}

// Close closes the log file if one is open
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if defaultLogger != nil && defaultLogger.file != nil {
		defaultLogger.file.Close()
		defaultLogger.file = nil
		defaultLogger.fileOutput = nil
	}
}

func (l *Logger) shouldLog(level LogLevel) bool {
	return level >= l.minLevel
}

// depth is the number of frames between the caller and output, so that
// Lshortfile reports the caller's file rather than this one.
func (l *Logger) output(depth int, level LogLevel, msg string) {
	mu.Lock()
	defer mu.Unlock()

	if !l.shouldLog(level) {
		return
	}

	var colorLogger, noColorLogger *log.Logger
	switch level {
	case DEBUG:
		colorLogger, noColorLogger = l.debugLogger, l.debugLoggerNoColor
	case INFO:
		colorLogger, noColorLogger = l.infoLogger, l.infoLoggerNoColor
	case WARN:
		colorLogger, noColorLogger = l.warnLogger, l.warnLoggerNoColor
	default:
		colorLogger, noColorLogger = l.errorLogger, l.errorLoggerNoColor
	}

	if l.consoleOutput != nil && colorLogger != nil {
		colorLogger.Output(depth, msg)
	}
	if l.fileOutput != nil && noColorLogger != nil {
		noColorLogger.Output(depth, msg)
	}
}

func emit(level LogLevel, msg string) {
	ensureInitialized()
	defaultLogger.output(4, level, msg)
}

// Debug logs a debug message
func Debug(v ...interface{}) { emit(DEBUG, fmt.Sprint(v...)) }

// Debugf logs a formatted debug message
func Debugf(format string, v ...interface{}) { emit(DEBUG, fmt.Sprintf(format, v...)) }

// Info logs an info message
func Info(v ...interface{}) { emit(INFO, fmt.Sprint(v...)) }

// Infof logs a formatted info message
func Infof(format string, v ...interface{}) { emit(INFO, fmt.Sprintf(format, v...)) }

// Warn logs a warning message
func Warn(v ...interface{}) { emit(WARN, fmt.Sprint(v...)) }

// Warnf logs a formatted warning message
func Warnf(format string, v ...interface{}) { emit(WARN, fmt.Sprintf(format, v...)) }

// Error logs an error message
func Error(v ...interface{}) { emit(ERROR, fmt.Sprint(v...)) }

// Errorf logs a formatted error message
func Errorf(format string, v ...interface{}) { emit(ERROR, fmt.Sprintf(format, v...)) }

// Fatal logs an error message and exits the program
func Fatal(v ...interface{}) {
	emit(ERROR, fmt.Sprint(v...))
	os.Exit(1)
}

// Fatalf logs a formatted error message and exits the program
func Fatalf(format string, v ...interface{}) {
	emit(ERROR, fmt.Sprintf(format, v...))
	os.Exit(1)
}

// Scoped prefixes every message with a fixed tag such as "[worker 0]" or "[job 3f2a]".
type Scoped struct {
	prefix string
}

// With returns a logger whose messages start with "[tag]".
func With(tag string) Scoped {
	return Scoped{prefix: "[" + tag + "] "}
}

// With nests a further tag: With("worker 1").With("job abc") -> "[worker 1] [job abc] ".
func (s Scoped) With(tag string) Scoped {
	return Scoped{prefix: s.prefix + "[" + tag + "] "}
}

func (s Scoped) Debugf(format string, v ...interface{}) {
	emit(DEBUG, s.prefix+fmt.Sprintf(format, v...))
}

func (s Scoped) Infof(format string, v ...interface{}) {
	emit(INFO, s.prefix+fmt.Sprintf(format, v...))
}

func (s Scoped) Warnf(format string, v ...interface{}) {
	emit(WARN, s.prefix+fmt.Sprintf(format, v...))
}

func (s Scoped) Errorf(format string, v ...interface{}) {
	emit(ERROR, s.prefix+fmt.Sprintf(format, v...))
}
