package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger defines a simple interface for logging.
// This allows for easy replacement with a more sophisticated logger if needed.
type Logger interface {
	Debugf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
	Fatalf(format string, v ...interface{})
}

// LogLevel defines the verbosity of the logger.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorDim    = "\033[2m"
)

func colorize(s string, color string, noColor bool) string {
	if noColor {
		return s
	}
	return color + s + colorReset
}

// Log callbacks let the progress bar clear and redraw itself around log lines
// so the bar and log output do not interleave on the same terminal line.
var (
	logCallbackMu sync.Mutex
	preLogFn      func()
	postLogFn     func()
)

// RegisterLogCallbacks installs hooks invoked before and after every log line.
func RegisterLogCallbacks(pre, post func()) {
	logCallbackMu.Lock()
	preLogFn = pre
	postLogFn = post
	logCallbackMu.Unlock()
}

// UnregisterLogCallbacks removes any installed log hooks.
func UnregisterLogCallbacks() {
	logCallbackMu.Lock()
	preLogFn = nil
	postLogFn = nil
	logCallbackMu.Unlock()
}

func invokeLogCallbacks() (post func()) {
	logCallbackMu.Lock()
	pre := preLogFn
	post = postLogFn
	logCallbackMu.Unlock()
	if pre != nil {
		pre()
	}
	return post
}

// defaultLogger is a basic implementation of the Logger interface.
type defaultLogger struct {
	debugLogger *log.Logger
	infoLogger  *log.Logger
	warnLogger  *log.Logger
	errorLogger *log.Logger
	fatalLogger *log.Logger
	logLevel    LogLevel
	noColor     bool
	silent      bool
}

// NewDefaultLogger creates a new logger with specified options.
func NewDefaultLogger(level LogLevel, noColor bool, silent bool) Logger {
	var debugOut io.Writer = os.Stdout
	var infoOut io.Writer = os.Stdout
	var warnOut io.Writer = os.Stdout
	var errorOut io.Writer = os.Stderr
	var fatalOut io.Writer = os.Stderr

	if silent {
		debugOut = io.Discard
		infoOut = io.Discard
		warnOut = io.Discard
	}

	return &defaultLogger{
		debugLogger: log.New(debugOut, "", 0),
		infoLogger:  log.New(infoOut, "", 0),
		warnLogger:  log.New(warnOut, "", 0),
		errorLogger: log.New(errorOut, "", 0),
		fatalLogger: log.New(fatalOut, "", 0),
		logLevel:    level,
		noColor:     noColor,
		silent:      silent,
	}
}

func (l *defaultLogger) logInternal(logger *log.Logger, levelStr string, levelColor string, format string, v ...interface{}) {
	post := invokeLogCallbacks()
	currentTime := time.Now().Format("15:04:05")
	prefix := fmt.Sprintf("%s [%s] ",
		colorize(fmt.Sprintf("[%s]", currentTime), colorDim, l.noColor),
		colorize(levelStr, levelColor, l.noColor),
	)
	logger.Print(prefix + fmt.Sprintf(format, v...))
	if post != nil {
		post()
	}
}

func (l *defaultLogger) Debugf(format string, v ...interface{}) {
	if l.logLevel <= LevelDebug {
		l.logInternal(l.debugLogger, "DEBUG", colorBlue, format, v...)
	}
}

func (l *defaultLogger) Infof(format string, v ...interface{}) {
	if l.logLevel <= LevelInfo {
		l.logInternal(l.infoLogger, "INFO", colorGreen, format, v...)
	}
}

func (l *defaultLogger) Warnf(format string, v ...interface{}) {
	if l.logLevel <= LevelWarn {
		l.logInternal(l.warnLogger, "WARN", colorYellow, format, v...)
	}
}

func (l *defaultLogger) Errorf(format string, v ...interface{}) {
	if l.logLevel <= LevelError {
		l.logInternal(l.errorLogger, "ERROR", colorRed, format, v...)
	}
}

func (l *defaultLogger) Fatalf(format string, v ...interface{}) {
	post := invokeLogCallbacks()
	currentTime := time.Now().Format("15:04:05")
	prefix := fmt.Sprintf("%s [%s] ",
		colorize(fmt.Sprintf("[%s]", currentTime), colorDim, l.noColor),
		colorize("FATAL", colorRed, l.noColor),
	)
	if post != nil {
		defer post()
	}
	l.fatalLogger.Fatal(prefix + fmt.Sprintf(format, v...))
}

// NoOpLogger discards everything. Useful as a default in helpers that accept
// an optional logger.
type NoOpLogger struct{}

func (NoOpLogger) Debugf(format string, v ...interface{}) {}
func (NoOpLogger) Infof(format string, v ...interface{})  {}
func (NoOpLogger) Warnf(format string, v ...interface{})  {}
func (NoOpLogger) Errorf(format string, v ...interface{}) {}
func (NoOpLogger) Fatalf(format string, v ...interface{}) {}

// StringToLogLevel converts a log level string to LogLevel type.
// Defaults to LevelInfo if the string is unrecognized.
func StringToLogLevel(levelStr string) LogLevel {
	switch strings.ToLower(levelStr) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		fmt.Fprintf(os.Stderr, "Unknown log level string '%s', defaulting to INFO.\n", levelStr)
		return LevelInfo
	}
}
