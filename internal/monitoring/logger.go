// Package monitoring holds the package-level diagnostic loggers shared by the
// server and the pipeline.
package monitoring

import (
	"log"
	"sync/atomic"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

var debug atomic.Bool

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetDebug turns debug logging on or off.
func SetDebug(on bool) {
	debug.Store(on)
}

// DebugEnabled reports whether debug logging is on.
func DebugEnabled() bool {
	return debug.Load()
}

// Debugf logs through Logf only when debug logging is on.
func Debugf(format string, v ...interface{}) {
	if debug.Load() {
		Logf("[DEBUG] "+format, v...)
	}
}
