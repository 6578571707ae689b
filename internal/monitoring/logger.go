// Package monitoring holds the process-wide diagnostic loggers used by the
// dealing engine packages.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// verbose gates Verbosef. Per-tick chatter (raw classifications, motion
// commands) is far too noisy for normal operation.
var verbose bool

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetVerbose enables or disables Verbosef output.
func SetVerbose(on bool) {
	verbose = on
}

// Verbose reports whether verbose logging is enabled.
func Verbose() bool {
	return verbose
}

// Verbosef logs through Logf only when verbose logging is enabled.
func Verbosef(format string, v ...interface{}) {
	if !verbose {
		return
	}
	Logf(format, v...)
}
