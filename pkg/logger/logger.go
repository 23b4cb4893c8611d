package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps LOG_LEVEL values onto a Level. Unknown values fall back to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

type Logger struct {
	level       atomic.Int32
	infoLogger  *log.Logger
	warnLogger  *log.Logger
	errorLogger *log.Logger
	debugLogger *log.Logger
}

func New() *Logger {
	l := &Logger{
		infoLogger:  log.New(os.Stdout, "INFO: ", log.Ldate|log.Ltime|log.Lshortfile),
		warnLogger:  log.New(os.Stdout, "WARN: ", log.Ldate|log.Ltime|log.Lshortfile),
		errorLogger: log.New(os.Stderr, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile),
		debugLogger: log.New(os.Stdout, "DEBUG: ", log.Ldate|log.Ltime|log.Lshortfile),
	}
	l.level.Store(int32(LevelInfo))
	return l
}

func (l *Logger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

// SetOutput sends every level to w. A nil w restores stdout and stderr.
func (l *Logger) SetOutput(w io.Writer) {
	if w == nil {
		l.infoLogger.SetOutput(os.Stdout)
		l.warnLogger.SetOutput(os.Stdout)
		l.errorLogger.SetOutput(os.Stderr)
		l.debugLogger.SetOutput(os.Stdout)
		return
	}
	for _, target := range []*log.Logger{l.infoLogger, l.warnLogger, l.errorLogger, l.debugLogger} {
		target.SetOutput(w)
	}
}

func (l *Logger) enabled(level Level) bool {
	return Level(l.level.Load()) <= level
}

// output skips this file's frames so Lshortfile points at the caller.
func (l *Logger) output(target *log.Logger, format string, v ...interface{}) {
	target.Output(4, fmt.Sprintf(format, v...))
}

func (l *Logger) Info(format string, v ...interface{}) {
	if l.enabled(LevelInfo) {
		l.output(l.infoLogger, format, v...)
	}
}

func (l *Logger) Warn(format string, v ...interface{}) {
	if l.enabled(LevelWarn) {
		l.output(l.warnLogger, format, v...)
	}
}

func (l *Logger) Error(format string, v ...interface{}) {
	if l.enabled(LevelError) {
		l.output(l.errorLogger, format, v...)
	}
}

func (l *Logger) Debug(format string, v ...interface{}) {
	if l.enabled(LevelDebug) {
		l.output(l.debugLogger, format, v...)
	}
}

func (l *Logger) Fatal(format string, v ...interface{}) {
	l.output(l.errorLogger, format, v...)
	os.Exit(1)
}

// Global logger instance
var GlobalLogger = New()

// Convenience functions
func SetLevel(level Level) {
	GlobalLogger.SetLevel(level)
}

func SetOutput(w io.Writer) {
	GlobalLogger.SetOutput(w)
}

func Info(format string, v ...interface{}) {
	GlobalLogger.Info(format, v...)
}

func Warn(format string, v ...interface{}) {
	GlobalLogger.Warn(format, v...)
}

func Error(format string, v ...interface{}) {
	GlobalLogger.Error(format, v...)
}

func Debug(format string, v ...interface{}) {
	GlobalLogger.Debug(format, v...)
}

func Fatal(format string, v ...interface{}) {
	GlobalLogger.Fatal(format, v...)
}

// Sink returns a line logger for components that report through a log side channel.
func Sink(prefix string) func(string) {
	return func(line string) {
		GlobalLogger.Info("%s%s", prefix, line)
	}
}
