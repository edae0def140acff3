package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

// LogLevel represents the severity of a log message
type LogLevel int32

const (
	// DebugLevel for protocol traces (relay log events, frames, pion internals)
	DebugLevel LogLevel = iota
	// InfoLevel for room and connection lifecycle messages
	InfoLevel
	// WarnLevel for dropped messages and insecure settings
	WarnLevel
	// ErrorLevel for failures
	ErrorLevel
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a config or flag value into a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger is a leveled printf-style logger. It is safe for concurrent use,
// including SetLevel while other goroutines are logging.
type Logger struct {
	logger   *log.Logger
	level    atomic.Int32
	prefix   string
	useColor bool
}

// New creates a new Logger instance
func New(out io.Writer, prefix string, level LogLevel) *Logger {
	l := &Logger{
		logger:   log.New(out, "", log.LstdFlags),
		prefix:   prefix,
		useColor: isTerminal(out),
	}
	l.level.Store(int32(level))
	return l
}

// NewDefault creates a logger writing to stderr at INFO level
func NewDefault(prefix string) *Logger {
	return New(os.Stderr, prefix, InfoLevel)
}

// SetLevel sets the minimum log level
func (l *Logger) SetLevel(level LogLevel) {
	l.level.Store(int32(level))
}

// Level returns the current minimum log level
func (l *Logger) Level() LogLevel {
	return LogLevel(l.level.Load())
}

// Enabled reports whether messages at level would be written
func (l *Logger) Enabled(level LogLevel) bool {
	return l.Level() <= level
}

func (l *Logger) Debug(format string, v ...any) {
	l.logf(DebugLevel, format, v...)
}

func (l *Logger) Info(format string, v ...any) {
	l.logf(InfoLevel, format, v...)
}

func (l *Logger) Warn(format string, v ...any) {
	l.logf(WarnLevel, format, v...)
}

func (l *Logger) Error(format string, v ...any) {
	l.logf(ErrorLevel, format, v...)
}

// Printf logs at INFO level. It lets the logger serve as a gorm logger writer.
func (l *Logger) Printf(format string, v ...any) {
	l.logf(InfoLevel, format, v...)
}

func (l *Logger) logf(level LogLevel, format string, v ...any) {
	if !l.Enabled(level) {
		return
	}

	levelStr := level.String()
	if l.useColor {
		levelStr = colorize(level, levelStr)
	}

	l.logger.Printf("%s [%s] %s", l.prefix, levelStr, fmt.Sprintf(format, v...))
}

func colorize(level LogLevel, text string) string {
	const (
		colorReset  = "\033[0m"
		colorGray   = "\033[90m"
		colorGreen  = "\033[32m"
		colorYellow = "\033[33m"
		colorRed    = "\033[31m"
	)

	switch level {
	case DebugLevel:
		return colorGray + text + colorReset
	case InfoLevel:
		return colorGreen + text + colorReset
	case WarnLevel:
		return colorYellow + text + colorReset
	case ErrorLevel:
		return colorRed + text + colorReset
	default:
		return text
	}
}

// isTerminal checks if the writer is a terminal
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || (f != os.Stdout && f != os.Stderr) {
		return false
	}
	term := os.Getenv("TERM")
	return term != "" && !strings.Contains(term, "dumb")
}
