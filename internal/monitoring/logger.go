// Package monitoring provides the process-wide diagnostic logger used by all
// driverwatch packages. Components log through Logf rather than the log
// package directly so binaries and tests can redirect or mute output.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced by SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// Verbose gates per-tick debug output. The daemon enables it with -verbose;
// it stays off by default because the engine ticks several times per second.
var Verbose bool

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Debugf logs through Logf only when Verbose is set.
func Debugf(format string, v ...interface{}) {
	if Verbose {
		Logf(format, v...)
	}
}
