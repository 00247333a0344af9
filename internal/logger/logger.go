package logger

import (
	"sync"
)

// Log levels used across the application.
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)

var (
	globalLogger *Logger
	once         sync.Once
)

// Get returns the process-wide logger. The first call fixes the initial
// level; later calls return the same instance. Use SetDebug to change the
// level afterwards.
func Get(level string) *Logger {
	once.Do(func() {
		globalLogger = newZapLogger(level)
	})
	return globalLogger
}

// LevelFor maps the debug setting onto a level name.
func LevelFor(debug bool) string {
	if debug {
		return DebugLevel
	}
	return InfoLevel
}
