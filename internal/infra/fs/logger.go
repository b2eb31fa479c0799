package fs

import (
	"fmt"
	"io"
	"os"
)

// Logger interface for the storage layer
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// stderrLogger is used until the CLI installs its leveled logger.
// Debug and info output is dropped.
type stderrLogger struct {
	output io.Writer
}

func (l *stderrLogger) Debug(format string, args ...interface{}) {}

func (l *stderrLogger) Info(format string, args ...interface{}) {}

func (l *stderrLogger) Warn(format string, args ...interface{}) {
	fmt.Fprintf(l.output, "WARN: "+format+"\n", args...)
}

func (l *stderrLogger) Error(format string, args ...interface{}) {
	fmt.Fprintf(l.output, "ERROR: "+format+"\n", args...)
}

var globalLogger Logger = &stderrLogger{output: os.Stderr}

// SetLogger sets the logger used by storage code; nil is ignored
func SetLogger(logger Logger) {
	if logger != nil {
		globalLogger = logger
	}
}

// GetLogger returns the current storage logger
func GetLogger() Logger {
	return globalLogger
}
